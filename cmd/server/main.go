package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/yourusername/remote-backup-manager/internal/api"
	"github.com/yourusername/remote-backup-manager/internal/backup"
	"github.com/yourusername/remote-backup-manager/internal/config"
	"github.com/yourusername/remote-backup-manager/internal/history"
	"github.com/yourusername/remote-backup-manager/internal/logging"
	"github.com/yourusername/remote-backup-manager/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	if err := os.MkdirAll(cfg.Storage.BackupDir, 0755); err != nil {
		log.Fatalf("Failed to create backup directory: %v", err)
	}

	// Initialize run history store
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			log.Fatalf("Failed to initialize history store: %v", err)
		}
		defer store.Close()
	}

	// Initialize offsite uploader
	var uploader backup.Uploader
	if cfg.Offsite.Enabled {
		s3Uploader, err := backup.NewS3Uploader(cfg.Offsite)
		if err != nil {
			log.Fatalf("Failed to initialize offsite uploader: %v", err)
		}
		uploader = s3Uploader
	}

	// Initialize backup manager
	opts := backup.Options{
		BackupDir:       cfg.Storage.BackupDir,
		RetentionCount:  cfg.Backup.RetentionCount,
		ConnectTimeout:  time.Duration(cfg.SSH.ConnectTimeout) * time.Second,
		TestTimeout:     time.Duration(cfg.SSH.TestTimeout) * time.Second,
		KnownHostsPath:  cfg.SSH.KnownHostsPath,
		TrustOnFirstUse: cfg.SSH.TrustOnFirstUse,
		Uploader:        uploader,
	}
	if store != nil {
		opts.History = store
	}
	manager := backup.NewManager(opts)

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Start backup schedule runner
	scheduler := backup.NewScheduleRunner(manager, cfg.Schedules, func(serverName string) backup.Sink {
		return func(event backup.Event) {
			hub.BroadcastToRoom(serverName, &websocket.Message{
				Type:      "backup_progress",
				Payload:   event,
				Timestamp: time.Now(),
			})
		}
	})
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start schedule runner: %v", err)
	}
	defer scheduler.Stop()

	// Set up HTTP server
	router := api.SetupRouter(cfg, manager, hub, store)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", server.Addr)

		if cfg.Server.TLS.Enabled {
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTPS server: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	scheduler.Stop()

	// Graceful shutdown with timeout. Running backups keep going until the
	// process exits; their progress sinks simply stop reaching clients.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func setupLogging(cfg *config.Config) error {
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) == "" {
		dataDir := cfg.Storage.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		cfg.Logging.File = filepath.Join(dataDir, "logs", "server.log")
	}
	if cfg != nil && strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	logging.Init(cfg.Logging)
	return nil
}
