package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/remote-backup-manager/internal/backup"

	_ "modernc.org/sqlite"
)

// Run is one recorded backup run. The history table is an audit trail only;
// listing and deletion of archives always go through the filesystem scan.
type Run struct {
	ID             string     `json:"id"`
	ServerName     string     `json:"server_name"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FilesProcessed int        `json:"files_processed"`
	TotalFiles     int        `json:"total_files"`
	DataSize       int64      `json:"data_size"`
	BackupFile     string     `json:"backup_file,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Store persists backup run history in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the history database.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn, err := buildSQLiteDSN(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func buildSQLiteDSN(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve history database path: %w", err)
	}

	absPath = strings.ReplaceAll(absPath, "\\", "/")

	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", absPath), nil
}

func (s *Store) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS backup_runs (
			id TEXT PRIMARY KEY,
			server_name TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			files_processed INTEGER NOT NULL DEFAULT 0,
			total_files INTEGER NOT NULL DEFAULT 0,
			data_size INTEGER NOT NULL DEFAULT 0,
			backup_file TEXT,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_backup_runs_server ON backup_runs(server_name, started_at DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate history database: %w", err)
	}
	return nil
}

// RecordStart inserts a running row and returns its id.
func (s *Store) RecordStart(serverName string, startedAt time.Time) (string, error) {
	runID := uuid.New().String()

	query := `
		INSERT INTO backup_runs (id, server_name, status, started_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, runID, serverName, backup.StatusRunning, startedAt.UTC()); err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}

	return runID, nil
}

// RecordFinish updates a row with the terminal state of its job.
func (s *Store) RecordFinish(runID, status string, job backup.Job) error {
	query := `
		UPDATE backup_runs
		SET status = ?, completed_at = ?, files_processed = ?, total_files = ?,
		    data_size = ?, backup_file = ?, error_message = ?
		WHERE id = ?
	`
	_, err := s.db.Exec(query,
		status,
		time.Now().UTC(),
		job.FilesProcessed,
		job.TotalFiles,
		job.DataSize,
		job.BackupFile,
		job.Error,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	return nil
}

// ListRuns returns recorded runs, optionally filtered to one server, newest
// first.
func (s *Store) ListRuns(serverName string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, server_name, status, started_at, completed_at,
		       files_processed, total_files, data_size, backup_file, error_message
		FROM backup_runs
	`
	args := []interface{}{}
	if serverName != "" {
		query += " WHERE server_name = ?"
		args = append(args, serverName)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var completedAt sql.NullTime
		var backupFile sql.NullString
		var errorMsg sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.ServerName,
			&run.Status,
			&run.StartedAt,
			&completedAt,
			&run.FilesProcessed,
			&run.TotalFiles,
			&run.DataSize,
			&backupFile,
			&errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		if backupFile.Valid {
			run.BackupFile = backupFile.String
		}
		if errorMsg.Valid {
			run.Error = errorMsg.String
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
