package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/remote-backup-manager/internal/backup"
	"github.com/yourusername/remote-backup-manager/internal/history"
	"github.com/yourusername/remote-backup-manager/internal/websocket"
)

// BackupHandler exposes the backup orchestrator over REST.
type BackupHandler struct {
	manager *backup.Manager
	hub     *websocket.Hub
	store   *history.Store
}

// NewBackupHandler creates a new backup handler. store may be nil when run
// history is disabled.
func NewBackupHandler(manager *backup.Manager, hub *websocket.Hub, store *history.Store) *BackupHandler {
	return &BackupHandler{
		manager: manager,
		hub:     hub,
		store:   store,
	}
}

type testConnectionRequest struct {
	Address  string `json:"address" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Port     int    `json:"port"`
}

// TestConnection handles POST /api/test-connection
func (h *BackupHandler) TestConnection(c *gin.Context) {
	var req testConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	success, message := h.manager.TestConnection(req.Address, req.Username, req.Password, req.Port)

	resp := gin.H{"success": success, "message": message}
	if !success {
		resp["error"] = message
	}
	c.JSON(http.StatusOK, resp)
}

type startBackupRequest struct {
	ServerName string   `json:"serverName" binding:"required"`
	Address    string   `json:"address" binding:"required"`
	Username   string   `json:"username" binding:"required"`
	Password   string   `json:"password" binding:"required"`
	Port       int      `json:"port"`
	Paths      []string `json:"paths" binding:"required"`
	SessionID  string   `json:"sessionId"`
}

// StartBackup handles POST /api/start-backup. The backup runs in the
// background; progress is delivered over the WebSocket room named by
// sessionId (falling back to the server name for observers without a
// session).
func (h *BackupHandler) StartBackup(c *gin.Context) {
	var req startBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	room := req.SessionID
	if room == "" {
		room = req.ServerName
	}
	sink := h.progressSink(room)

	identity := backup.ServerIdentity{
		Name:     req.ServerName,
		Address:  req.Address,
		Username: req.Username,
		Password: req.Password,
		Port:     req.Port,
	}

	err := h.manager.StartBackup(identity, req.Paths, sink)
	if errors.Is(err, backup.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   "Backup already running for this server",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Backup started",
	})
}

// GetBackups handles GET /api/get-backups?serverId=
func (h *BackupHandler) GetBackups(c *gin.Context) {
	serverName := c.Query("serverId")

	backups, err := h.manager.GetBackups(serverName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"backups": backups,
	})
}

type deleteBackupRequest struct {
	BackupID string `json:"backupId" binding:"required"`
}

// DeleteBackup handles DELETE /api/delete-backup
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	var req deleteBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	err := h.manager.DeleteBackup(req.BackupID)
	if errors.Is(err, backup.ErrBackupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Backup not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Backup deleted successfully",
	})
}

// GetBackupStatus handles GET /api/backup-status/:serverName
func (h *BackupHandler) GetBackupStatus(c *gin.Context) {
	serverName := c.Param("serverName")

	status := h.manager.GetBackupStatus(serverName)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  status,
	})
}

// GetHistory handles GET /api/history?serverId=&limit=
func (h *BackupHandler) GetHistory(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Run history is disabled"})
		return
	}

	serverName := c.Query("serverId")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListRuns(serverName, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"runs":    runs,
	})
}

// progressSink adapts hub broadcasting into the orchestrator's event sink.
func (h *BackupHandler) progressSink(room string) backup.Sink {
	return func(event backup.Event) {
		h.hub.BroadcastToRoom(room, &websocket.Message{
			Type:      "backup_progress",
			Payload:   event,
			Timestamp: time.Now(),
		})
	}
}
