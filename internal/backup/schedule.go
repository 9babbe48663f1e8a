package backup

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/yourusername/remote-backup-manager/internal/config"
	"github.com/yourusername/remote-backup-manager/internal/logging"
)

// ScheduleRunner fires configured backups on cron schedules. Each tick goes
// through the manager's normal start path, so the one-backup-per-server
// guard applies; ticks that overlap a running job are logged and skipped.
type ScheduleRunner struct {
	manager *Manager
	entries []config.ScheduleEntry
	sinkFor func(serverName string) Sink
	cron    *cron.Cron
}

// NewScheduleRunner creates a runner for the configured schedule entries.
// sinkFor supplies the progress sink used for a scheduled run; nil means
// progress is discarded.
func NewScheduleRunner(manager *Manager, entries []config.ScheduleEntry, sinkFor func(serverName string) Sink) *ScheduleRunner {
	return &ScheduleRunner{
		manager: manager,
		entries: entries,
		sinkFor: sinkFor,
		cron:    cron.New(),
	}
}

// Start registers all schedule entries and starts the cron loop.
func (sr *ScheduleRunner) Start() error {
	for _, entry := range sr.entries {
		entry := entry
		_, err := sr.cron.AddFunc(entry.Cron, func() {
			sr.runScheduled(entry)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q for server %s: %w", entry.Cron, entry.ServerName, err)
		}

		logging.L().Info("backup_schedule_registered",
			"server", entry.ServerName,
			"cron", entry.Cron,
			"paths", len(entry.Paths),
		)
	}

	sr.cron.Start()
	return nil
}

// Stop halts the cron loop. Running jobs are unaffected.
func (sr *ScheduleRunner) Stop() {
	sr.cron.Stop()
}

func (sr *ScheduleRunner) runScheduled(entry config.ScheduleEntry) {
	identity := ServerIdentity{
		Name:     entry.ServerName,
		Address:  entry.Address,
		Username: entry.Username,
		Password: entry.Password,
		Port:     entry.Port,
	}

	var sink Sink
	if sr.sinkFor != nil {
		sink = sr.sinkFor(entry.ServerName)
	}

	err := sr.manager.StartBackup(identity, entry.Paths, sink)
	if errors.Is(err, ErrAlreadyRunning) {
		logging.L().Warn("scheduled_backup_skipped",
			"server", entry.ServerName,
			"reason", "backup already running",
		)
		return
	}
	if err != nil {
		logging.L().Error("scheduled_backup_failed", "server", entry.ServerName, "error", err)
		return
	}

	logging.L().Info("scheduled_backup_started", "server", entry.ServerName)
}
