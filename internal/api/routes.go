package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/remote-backup-manager/internal/api/handlers"
	"github.com/yourusername/remote-backup-manager/internal/api/middleware"
	"github.com/yourusername/remote-backup-manager/internal/backup"
	"github.com/yourusername/remote-backup-manager/internal/config"
	"github.com/yourusername/remote-backup-manager/internal/history"
	"github.com/yourusername/remote-backup-manager/internal/websocket"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(
	cfg *config.Config,
	manager *backup.Manager,
	hub *websocket.Hub,
	store *history.Store,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))

	backupHandler := handlers.NewBackupHandler(manager, hub, store)
	wsHandler := handlers.NewWebSocketHandler(hub)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/test-connection", backupHandler.TestConnection)
		apiGroup.POST("/start-backup", backupHandler.StartBackup)
		apiGroup.GET("/get-backups", backupHandler.GetBackups)
		apiGroup.DELETE("/delete-backup", backupHandler.DeleteBackup)
		apiGroup.GET("/backup-status/:serverName", backupHandler.GetBackupStatus)
		apiGroup.GET("/history", backupHandler.GetHistory)
	}

	router.GET("/ws", wsHandler.HandleWebSocket)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	registerFrontend(router, cfg.Storage.FrontendDir)

	return router
}

// registerFrontend serves the static single-page frontend, when present.
func registerFrontend(router *gin.Engine, frontendDir string) {
	if frontendDir == "" {
		return
	}
	if _, err := os.Stat(frontendDir); err != nil {
		return
	}

	index := filepath.Join(frontendDir, "index.html")
	router.GET("/", func(c *gin.Context) {
		c.File(index)
	})
	router.Static("/css", filepath.Join(frontendDir, "css"))
	router.Static("/js", filepath.Join(frontendDir, "js"))
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.File(index)
	})
}
