package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/remote-backup-manager/internal/logging"
	sshclient "github.com/yourusername/remote-backup-manager/internal/ssh"
)

var (
	// ErrAlreadyRunning is returned when a start request races or overlaps
	// an in-flight backup for the same server.
	ErrAlreadyRunning = errors.New("backup already in progress for this server")

	// ErrBackupNotFound is returned when a delete targets an unknown backup id.
	ErrBackupNotFound = errors.New("backup not found")
)

// Job statuses. A job is absent until started, then running, then exactly
// one of completed or failed. Terminal jobs stay queryable until overwritten
// by a new run for the same server.
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ServerIdentity identifies one remote host for the lifetime of a request.
// Name is the backup-isolation key and per-server directory name.
type ServerIdentity struct {
	Name     string `json:"serverName"`
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	Port     int    `json:"port"`
}

// Job is the live record of one backup run.
type Job struct {
	Status         string `json:"status"`
	StartedAt      string `json:"started_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
	Progress       int    `json:"progress"`
	CurrentFile    string `json:"current_file,omitempty"`
	FilesProcessed int    `json:"files_processed"`
	TotalFiles     int    `json:"total_files"`
	DataSize       int64  `json:"data_size"`
	Error          string `json:"error,omitempty"`
	BackupFile     string `json:"backup_file,omitempty"`
}

// Uploader pushes a finished archive to offsite storage.
type Uploader interface {
	Upload(serverName, archivePath string) error
}

// RunRecorder persists backup run history.
type RunRecorder interface {
	RecordStart(serverName string, startedAt time.Time) (string, error)
	RecordFinish(runID, status string, job Job) error
}

// Dialer opens a remote session; swapped out in tests.
type Dialer func(config *sshclient.ClientConfig) (Session, error)

// Options configures a Manager.
type Options struct {
	BackupDir       string
	RetentionCount  int
	ConnectTimeout  time.Duration
	TestTimeout     time.Duration
	KnownHostsPath  string
	TrustOnFirstUse bool
	Dial            Dialer      // nil means real SSH
	Uploader        Uploader    // nil disables offsite upload
	History         RunRecorder // nil disables run history
}

// Manager owns the live-job table and sequences the backup pipeline:
// connect, count, download, archive, persist metadata, prune.
type Manager struct {
	opts Options

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewManager creates a backup manager rooted at opts.BackupDir.
func NewManager(opts Options) *Manager {
	if opts.RetentionCount < 1 {
		opts.RetentionCount = DefaultRetentionCount
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.TestTimeout == 0 {
		opts.TestTimeout = 10 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = func(config *sshclient.ClientConfig) (Session, error) {
			return sshclient.NewClient(config)
		}
	}

	return &Manager{
		opts: opts,
		jobs: make(map[string]*Job),
	}
}

// TestConnection verifies that a server is reachable with the given
// credentials. Never returns an error; failures become a message.
func (m *Manager) TestConnection(address, username, password string, port int) (bool, string) {
	return sshclient.TestConnection(&sshclient.ClientConfig{
		Host:            address,
		Port:            port,
		Username:        username,
		Password:        password,
		Timeout:         m.opts.TestTimeout,
		KnownHostsPath:  m.opts.KnownHostsPath,
		TrustOnFirstUse: m.opts.TrustOnFirstUse,
	})
}

// StartBackup registers a running job for the server and launches the
// pipeline in the background. Returns ErrAlreadyRunning without touching the
// existing record if a job for this server is still running; the
// check-and-insert is atomic.
func (m *Manager) StartBackup(identity ServerIdentity, paths []string, sink Sink) error {
	if identity.Name == "" || identity.Address == "" {
		return fmt.Errorf("server name and address are required")
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one backup path is required")
	}

	startedAt := time.Now()

	m.mu.Lock()
	if job, ok := m.jobs[identity.Name]; ok && job.Status == StatusRunning {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.jobs[identity.Name] = &Job{
		Status:    StatusRunning,
		StartedAt: startedAt.Format(time.RFC3339),
	}
	m.mu.Unlock()

	runID := ""
	if m.opts.History != nil {
		id, err := m.opts.History.RecordStart(identity.Name, startedAt)
		if err != nil {
			logging.L().Warn("history_record_failed", "server", identity.Name, "error", err)
		} else {
			runID = id
		}
	}

	go m.runJob(identity, paths, sink, runID)

	return nil
}

// GetBackupStatus returns a snapshot of the live job for a server, or an
// idle marker if none exists.
func (m *Manager) GetBackupStatus(serverName string) Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[serverName]; ok {
		return *job
	}
	return Job{Status: StatusIdle}
}

// GetBackups lists persisted backups, optionally filtered to one server.
func (m *Manager) GetBackups(serverName string) ([]*Metadata, error) {
	return ListBackups(m.opts.BackupDir, serverName)
}

// DeleteBackup removes the archive and metadata pair identified by its
// created_at value. Returns ErrBackupNotFound when no backup matches; no
// files are touched in that case.
func (m *Manager) DeleteBackup(backupID string) error {
	backups, err := m.GetBackups("")
	if err != nil {
		return err
	}

	var target *Metadata
	for _, backup := range backups {
		if backup.CreatedAt == backupID {
			target = backup
			break
		}
	}

	if target == nil {
		return ErrBackupNotFound
	}

	if err := os.Remove(target.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive: %w", err)
	}

	metadataPath := MetadataPath(target.FilePath)
	if err := os.Remove(metadataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	logging.L().Info("backup_deleted", "server", target.ServerName, "backup", target.BackupName)
	return nil
}

// runJob executes the full pipeline for one backup. Stages are strictly
// sequential within the job; any escaped error transitions the job to failed.
func (m *Manager) runJob(identity ServerIdentity, paths []string, sink Sink, runID string) {
	defer func() {
		if r := recover(); r != nil {
			m.failJob(identity.Name, sink, runID, fmt.Sprintf("panic: %v", r))
		}
	}()

	emit(sink, Event{
		Type:     EventInfo,
		Message:  fmt.Sprintf("Connecting to server %s...", identity.Address),
		Progress: progressPtr(0),
	})

	session, err := m.opts.Dial(&sshclient.ClientConfig{
		Host:            identity.Address,
		Port:            identity.Port,
		Username:        identity.Username,
		Password:        identity.Password,
		Timeout:         m.opts.ConnectTimeout,
		KnownHostsPath:  m.opts.KnownHostsPath,
		TrustOnFirstUse: m.opts.TrustOnFirstUse,
	})
	if err != nil {
		m.failJob(identity.Name, sink, runID, err.Error())
		return
	}
	defer session.Close()

	emit(sink, Event{
		Type:     EventSuccess,
		Message:  "Connected successfully!",
		Progress: progressPtr(5),
	})

	serverDir := filepath.Join(m.opts.BackupDir, identity.Name)
	if err := os.MkdirAll(serverDir, 0755); err != nil {
		m.failJob(identity.Name, sink, runID, fmt.Sprintf("failed to create backup directory: %v", err))
		return
	}

	archivePath := filepath.Join(serverDir, ArchiveName(time.Now()))

	emit(sink, Event{
		Type:     EventInfo,
		Message:  "Analyzing files and directories...",
		Progress: progressPtr(10),
	})

	totalFiles := 0
	for _, path := range paths {
		totalFiles += CountFiles(session, path)
	}

	emit(sink, Event{
		Type:     EventInfo,
		Message:  fmt.Sprintf("Found %d files to backup", totalFiles),
		Progress: progressPtr(15),
		Stats:    map[string]interface{}{"total_files": totalFiles},
	})

	m.updateJob(identity.Name, func(job *Job) {
		job.TotalFiles = totalFiles
		job.Progress = 15
	})

	stagingDir, err := os.MkdirTemp("", "backup-staging-")
	if err != nil {
		m.failJob(identity.Name, sink, runID, fmt.Sprintf("failed to create staging directory: %v", err))
		return
	}
	defer os.RemoveAll(stagingDir)

	downloader := NewDownloader(session, sink)

	filesProcessed := 0
	var totalSize int64

	for i, path := range paths {
		emit(sink, Event{
			Type:        EventInfo,
			Message:     fmt.Sprintf("Processing path: %s", path),
			Progress:    progressPtr(downloadBandStart + i*downloadBandWidth/len(paths)),
			CurrentFile: path,
		})

		files, size := m.downloadRoot(downloader, path, stagingDir, sink, filesProcessed, totalFiles)
		filesProcessed += files
		totalSize += size

		m.updateJob(identity.Name, func(job *Job) {
			job.FilesProcessed = filesProcessed
			job.DataSize = totalSize
			job.CurrentFile = path
		})
	}

	emit(sink, Event{
		Type:     EventInfo,
		Message:  "Creating ZIP archive...",
		Progress: progressPtr(compressBandStart),
	})

	if _, err := CreateArchive(stagingDir, archivePath, sink); err != nil {
		m.failJob(identity.Name, sink, runID, fmt.Sprintf("failed to create archive: %v", err))
		return
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		m.failJob(identity.Name, sink, runID, fmt.Sprintf("failed to stat archive: %v", err))
		return
	}

	meta := &Metadata{
		ServerName:    identity.Name,
		ServerAddress: identity.Address,
		BackupName:    filepath.Base(archivePath),
		BackupPaths:   paths,
		CreatedAt:     time.Now().Format(time.RFC3339),
		SizeBytes:     archiveInfo.Size(),
		FilesCount:    filesProcessed,
	}

	if err := WriteMetadata(archivePath, meta); err != nil {
		m.failJob(identity.Name, sink, runID, err.Error())
		return
	}

	session.Close()

	Prune(serverDir, m.opts.RetentionCount)

	if m.opts.Uploader != nil {
		if err := m.opts.Uploader.Upload(identity.Name, archivePath); err != nil {
			emit(sink, Event{
				Type:    EventWarning,
				Message: fmt.Sprintf("Offsite upload failed: %v", err),
			})
		}
	}

	m.updateJob(identity.Name, func(job *Job) {
		job.Status = StatusCompleted
		job.CompletedAt = time.Now().Format(time.RFC3339)
		job.Progress = 100
		job.CurrentFile = ""
		job.BackupFile = archivePath
	})

	emit(sink, Event{
		Type:     EventSuccess,
		Message:  fmt.Sprintf("Backup completed successfully! %d files backed up.", filesProcessed),
		Progress: progressPtr(100),
		Stats: map[string]interface{}{
			"files_processed": filesProcessed,
			"total_size_mb":   roundMB(totalSize),
			"backup_file":     archivePath,
		},
	})

	m.recordFinish(identity.Name, runID)

	logging.L().Info("backup_completed",
		"server", identity.Name,
		"files", filesProcessed,
		"bytes", totalSize,
		"archive", archivePath,
	)
}

// downloadRoot isolates one requested root so an unrecoverable error there
// cannot prevent processing of subsequent roots.
func (m *Manager) downloadRoot(downloader *Downloader, path, stagingDir string, sink Sink, filesProcessed, totalFiles int) (files int, size int64) {
	defer func() {
		if r := recover(); r != nil {
			emit(sink, Event{
				Type:    EventError,
				Message: fmt.Sprintf("Error backing up %s: %v", path, r),
			})
			files, size = 0, 0
		}
	}()

	return downloader.DownloadPath(path, stagingDir, filesProcessed, totalFiles)
}

// failJob transitions a job to failed and emits the terminal error event.
func (m *Manager) failJob(serverName string, sink Sink, runID, message string) {
	errMsg := fmt.Sprintf("Backup failed for server %s: %s", serverName, message)
	logging.L().Error("backup_failed", "server", serverName, "error", message)

	emit(sink, Event{
		Type:    EventError,
		Message: errMsg,
	})

	m.updateJob(serverName, func(job *Job) {
		job.Status = StatusFailed
		job.CompletedAt = time.Now().Format(time.RFC3339)
		job.Error = message
	})

	m.recordFinish(serverName, runID)
}

func (m *Manager) updateJob(serverName string, update func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[serverName]; ok {
		update(job)
	}
}

func (m *Manager) recordFinish(serverName, runID string) {
	if m.opts.History == nil || runID == "" {
		return
	}

	job := m.GetBackupStatus(serverName)
	if err := m.opts.History.RecordFinish(runID, job.Status, job); err != nil {
		logging.L().Warn("history_record_failed", "server", serverName, "error", err)
	}
}
