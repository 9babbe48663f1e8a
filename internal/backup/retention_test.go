package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// seedArchives writes n archive+sidecar pairs with strictly increasing mtimes
// and returns their paths oldest first.
func seedArchives(t *testing.T, dir string, n int) []string {
	t.Helper()
	base := time.Now().Add(-time.Duration(n) * time.Hour)

	var paths []string
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("backup_2025010%d_000000.zip", i)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("zip"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(MetadataPath(path), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}

		mtime := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return paths
}

func countArchives(t *testing.T, dir string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "backup_*.zip"))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	paths := seedArchives(t, dir, 5)

	Prune(dir, 2)

	if got := countArchives(t, dir); got != 2 {
		t.Fatalf("archives left = %d, want 2", got)
	}

	// The two newest survive, their sidecars with them.
	for _, path := range paths[3:] {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("newest archive pruned: %s", path)
		}
		if _, err := os.Stat(MetadataPath(path)); err != nil {
			t.Errorf("survivor lost its sidecar: %s", path)
		}
	}

	// The pruned entries lose both halves of the pair.
	for _, path := range paths[:3] {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("old archive not pruned: %s", path)
		}
		if _, err := os.Stat(MetadataPath(path)); !os.IsNotExist(err) {
			t.Errorf("orphaned sidecar left behind: %s", path)
		}
	}
}

func TestPruneUnderLimit(t *testing.T) {
	dir := t.TempDir()
	seedArchives(t, dir, 3)

	Prune(dir, 7)

	if got := countArchives(t, dir); got != 3 {
		t.Errorf("archives left = %d, want 3", got)
	}
}

func TestPruneExactLimit(t *testing.T) {
	dir := t.TempDir()
	seedArchives(t, dir, 4)

	Prune(dir, 4)

	if got := countArchives(t, dir); got != 4 {
		t.Errorf("archives left = %d, want 4", got)
	}
}

func TestPruneInvalidKeepCountUsesDefault(t *testing.T) {
	dir := t.TempDir()
	seedArchives(t, dir, 10)

	Prune(dir, 0)

	if got := countArchives(t, dir); got != DefaultRetentionCount {
		t.Errorf("archives left = %d, want %d", got, DefaultRetentionCount)
	}
}

func TestPruneEmptyDir(t *testing.T) {
	// Must not panic or create anything.
	dir := t.TempDir()
	Prune(dir, 3)

	if got := countArchives(t, dir); got != 0 {
		t.Errorf("archives = %d, want 0", got)
	}
}

func TestPruneIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	seedArchives(t, dir, 3)

	foreign := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep me"), 0644); err != nil {
		t.Fatal(err)
	}

	Prune(dir, 1)

	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file deleted: %v", err)
	}
	if got := countArchives(t, dir); got != 1 {
		t.Errorf("archives left = %d, want 1", got)
	}
}
