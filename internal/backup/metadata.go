package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yourusername/remote-backup-manager/internal/logging"
)

// Archive naming. Every archive has exactly one sidecar metadata record with
// the same base name; the pair is created and deleted together.
const (
	archivePrefix  = "backup_"
	archiveExt     = ".zip"
	metadataSuffix = ".zip.json"
)

// Metadata is the sidecar record describing one archive. Written once,
// immutable, read-many for listing. CreatedAt doubles as the unique
// identifier for delete operations.
type Metadata struct {
	ServerName    string   `json:"server_name"`
	ServerAddress string   `json:"server_address"`
	BackupName    string   `json:"backup_name"`
	BackupPaths   []string `json:"backup_paths"`
	CreatedAt     string   `json:"created_at"`
	SizeBytes     int64    `json:"size_bytes"`
	FilesCount    int      `json:"files_count"`

	// Computed on listing, not persisted meaningfully.
	FilePath string  `json:"file_path,omitempty"`
	SizeMB   float64 `json:"size_mb,omitempty"`
}

// ArchiveName returns the timestamped archive file name for a backup run.
func ArchiveName(t time.Time) string {
	return archivePrefix + t.Format("20060102_150405") + archiveExt
}

// MetadataPath returns the sidecar path for an archive path.
func MetadataPath(archivePath string) string {
	return archivePath + ".json"
}

// WriteMetadata persists the sidecar record next to its archive.
func WriteMetadata(archivePath string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(MetadataPath(archivePath), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// LoadMetadata reads one sidecar record.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

// ListBackups scans the backup root (or one server directory when serverName
// is set) and returns every metadata record whose archive still exists,
// augmented with file path and size in MB, sorted by creation time
// descending. A server with zero archives yields an empty list, not an
// error.
func ListBackups(backupRoot, serverName string) ([]*Metadata, error) {
	var serverDirs []string

	if serverName != "" {
		serverDirs = []string{filepath.Join(backupRoot, serverName)}
	} else {
		entries, err := os.ReadDir(backupRoot)
		if err != nil {
			if os.IsNotExist(err) {
				return []*Metadata{}, nil
			}
			return nil, fmt.Errorf("failed to read backup root: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				serverDirs = append(serverDirs, filepath.Join(backupRoot, entry.Name()))
			}
		}
	}

	backups := []*Metadata{}
	for _, dir := range serverDirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		matches, err := filepath.Glob(filepath.Join(dir, archivePrefix+"*"+metadataSuffix))
		if err != nil {
			continue
		}

		for _, metadataPath := range matches {
			meta, err := LoadMetadata(metadataPath)
			if err != nil {
				logging.L().Warn("metadata_read_failed", "path", metadataPath, "error", err)
				continue
			}

			archivePath := filepath.Join(dir, meta.BackupName)
			if _, err := os.Stat(archivePath); err != nil {
				continue
			}

			meta.FilePath = archivePath
			meta.SizeMB = roundMB(meta.SizeBytes)
			backups = append(backups, meta)
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt > backups[j].CreatedAt
	})

	return backups, nil
}

// roundMB converts bytes to MB with two decimals.
func roundMB(bytes int64) float64 {
	return float64(int64(float64(bytes)/(1024*1024)*100+0.5)) / 100
}
