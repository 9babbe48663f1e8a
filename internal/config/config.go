package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	SSH       SSHConfig       `yaml:"ssh" json:"ssh"`
	Backup    BackupConfig    `yaml:"backup" json:"backup"`
	Offsite   OffsiteConfig   `yaml:"offsite" json:"offsite"`
	History   HistoryConfig   `yaml:"history" json:"history"`
	Schedules []ScheduleEntry `yaml:"schedules" json:"schedules"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	TLS  TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	BackupDir   string `yaml:"backup_dir" json:"backup_dir"`
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	FrontendDir string `yaml:"frontend_dir" json:"frontend_dir"`
}

// SSHConfig contains SSH connection settings
type SSHConfig struct {
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`
	ConnectTimeout  int    `yaml:"connect_timeout" json:"connect_timeout"` // seconds
	TestTimeout     int    `yaml:"test_timeout" json:"test_timeout"`       // seconds
}

// BackupConfig contains backup behavior settings
type BackupConfig struct {
	RetentionCount int `yaml:"retention_count" json:"retention_count"`
}

// OffsiteConfig contains optional S3 archive upload settings
type OffsiteConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Prefix    string `yaml:"prefix" json:"prefix"`
}

// HistoryConfig contains run history store settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// ScheduleEntry defines a cron-scheduled backup for one server
type ScheduleEntry struct {
	ServerName string   `yaml:"server_name" json:"server_name"`
	Address    string   `yaml:"address" json:"address"`
	Username   string   `yaml:"username" json:"username"`
	Password   string   `yaml:"password" json:"password"`
	Port       int      `yaml:"port" json:"port"`
	Paths      []string `yaml:"paths" json:"paths"`
	Cron       string   `yaml:"cron" json:"cron"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Storage: StorageConfig{
			BackupDir:   "./backup",
			DataDir:     "./data",
			FrontendDir: "./frontend",
		},
		SSH: SSHConfig{
			KnownHostsPath:  "",
			TrustOnFirstUse: true,
			ConnectTimeout:  30,
			TestTimeout:     10,
		},
		Backup: BackupConfig{
			RetentionCount: 7,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "./data/history.db",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	if backupDir := os.Getenv("BACKUP_DIR"); backupDir != "" {
		cfg.Storage.BackupDir = backupDir
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}

	if frontendDir := os.Getenv("FRONTEND_DIR"); frontendDir != "" {
		cfg.Storage.FrontendDir = frontendDir
	}

	if knownHostsPath := os.Getenv("KNOWN_HOSTS_PATH"); knownHostsPath != "" {
		cfg.SSH.KnownHostsPath = knownHostsPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS is enabled but cert_file or key_file is missing")
		}
	}

	if c.Backup.RetentionCount < 1 {
		return fmt.Errorf("retention_count must be at least 1")
	}

	if c.Offsite.Enabled && c.Offsite.Bucket == "" {
		return fmt.Errorf("offsite upload is enabled but bucket is missing")
	}

	for i, entry := range c.Schedules {
		if entry.ServerName == "" || entry.Address == "" || entry.Cron == "" {
			return fmt.Errorf("schedule %d is missing server_name, address or cron", i)
		}
		if len(entry.Paths) == 0 {
			return fmt.Errorf("schedule %d has no paths", i)
		}
	}

	return nil
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Storage.BackupDir) == "" {
		c.Storage.BackupDir = filepath.Join(rootDir, "backup")
	}
	c.Storage.BackupDir = resolvePath(c.Storage.BackupDir)

	if strings.TrimSpace(c.Storage.FrontendDir) != "" {
		c.Storage.FrontendDir = resolvePath(c.Storage.FrontendDir)
	}

	if strings.TrimSpace(c.SSH.KnownHostsPath) != "" {
		c.SSH.KnownHostsPath = resolvePath(c.SSH.KnownHostsPath)
	}

	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Storage.DataDir, "history.db")
	}
	c.History.Path = resolvePath(c.History.Path)
}
