package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/yourusername/remote-backup-manager/internal/backup"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordStartAndFinish(t *testing.T) {
	store := newTestStore(t)

	runID, err := store.RecordStart("web-01", time.Now())
	if err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	job := backup.Job{
		Status:         backup.StatusCompleted,
		FilesProcessed: 12,
		TotalFiles:     12,
		DataSize:       4096,
		BackupFile:     "/backup/web-01/backup_20250101_000000.zip",
	}
	if err := store.RecordFinish(runID, backup.StatusCompleted, job); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	runs, err := store.ListRuns("web-01", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}

	run := runs[0]
	if run.ID != runID {
		t.Errorf("id = %s, want %s", run.ID, runID)
	}
	if run.Status != backup.StatusCompleted {
		t.Errorf("status = %s", run.Status)
	}
	if run.FilesProcessed != 12 || run.DataSize != 4096 {
		t.Errorf("run = %+v", run)
	}
	if run.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if run.BackupFile != job.BackupFile {
		t.Errorf("backup file = %s", run.BackupFile)
	}
}

func TestRecordFinishFailedRun(t *testing.T) {
	store := newTestStore(t)

	runID, err := store.RecordStart("web-01", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	job := backup.Job{Status: backup.StatusFailed, Error: "connection refused"}
	if err := store.RecordFinish(runID, backup.StatusFailed, job); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	runs, err := store.ListRuns("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d", len(runs))
	}
	if runs[0].Status != backup.StatusFailed || runs[0].Error != "connection refused" {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestListRunsFilterAndOrder(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	if _, err := store.RecordStart("web-01", base); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordStart("db-01", base.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordStart("web-01", base.Add(20*time.Minute)); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns("web-01", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("filtered runs = %d, want 2", len(runs))
	}
	for _, run := range runs {
		if run.ServerName != "web-01" {
			t.Errorf("unexpected server %s", run.ServerName)
		}
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Error("runs not sorted newest first")
	}

	all, err := store.ListRuns("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all runs = %d, want 3", len(all))
	}

	limited, err := store.ListRuns("", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited runs = %d, want 1", len(limited))
	}
}

func TestListRunsEmpty(t *testing.T) {
	store := newTestStore(t)

	runs, err := store.ListRuns("nobody", 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0", len(runs))
	}
}
