package backup

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/yourusername/remote-backup-manager/internal/logging"
)

// DefaultRetentionCount is how many archives survive pruning per server
// unless configured otherwise.
const DefaultRetentionCount = 7

// Prune keeps the keepCount most recently modified archives in a server's
// backup directory and deletes older archive+metadata pairs together. A
// single deletion failure is logged and does not abort pruning of the
// remaining entries.
func Prune(serverBackupDir string, keepCount int) {
	if keepCount < 1 {
		keepCount = DefaultRetentionCount
	}

	matches, err := filepath.Glob(filepath.Join(serverBackupDir, archivePrefix+"*"+archiveExt))
	if err != nil {
		logging.L().Warn("retention_glob_failed", "dir", serverBackupDir, "error", err)
		return
	}

	type archiveEntry struct {
		path    string
		modTime int64
	}

	var archives []archiveEntry
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			logging.L().Warn("retention_stat_failed", "path", match, "error", err)
			continue
		}
		archives = append(archives, archiveEntry{path: match, modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].modTime > archives[j].modTime
	})

	if len(archives) <= keepCount {
		return
	}

	for _, entry := range archives[keepCount:] {
		if err := os.Remove(entry.path); err != nil {
			logging.L().Warn("retention_delete_failed", "path", entry.path, "error", err)
			continue
		}

		metadataPath := MetadataPath(entry.path)
		if _, err := os.Stat(metadataPath); err == nil {
			if err := os.Remove(metadataPath); err != nil {
				logging.L().Warn("retention_delete_failed", "path", metadataPath, "error", err)
			}
		}

		logging.L().Info("retention_pruned", "path", entry.path)
	}
}
