package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestDownloadPathSingleFile(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/etc/nginx/nginx.conf": []byte("server {}"),
	})
	recorder := &eventRecorder{}
	d := NewDownloader(session, recorder.sink())

	dir := t.TempDir()
	files, size := d.DownloadPath("/etc/nginx/nginx.conf", dir, 0, 1)

	if files != 1 {
		t.Fatalf("files = %d, want 1", files)
	}
	if size != int64(len("server {}")) {
		t.Errorf("size = %d", size)
	}

	content, err := os.ReadFile(filepath.Join(dir, "nginx.conf"))
	if err != nil {
		t.Fatalf("local copy missing: %v", err)
	}
	if string(content) != "server {}" {
		t.Errorf("content = %q", content)
	}

	if recorder.find(EventSuccess, "Downloaded: /etc/nginx/nginx.conf") == nil {
		t.Error("no download success event")
	}
}

func TestDownloadPathDirectoryTree(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/srv/site/index.html":    []byte("index"),
		"/srv/site/img/logo.png":  []byte("png"),
		"/srv/site/img/icon.png":  []byte("ico"),
		"/srv/site/notes/todo.md": []byte("todo"),
	})
	d := NewDownloader(session, nil)

	dir := t.TempDir()
	files, size := d.DownloadPath("/srv/site", dir, 0, 4)

	if files != 4 {
		t.Fatalf("files = %d, want 4", files)
	}
	if size != int64(len("index")+len("png")+len("ico")+len("todo")) {
		t.Errorf("size = %d", size)
	}

	// The remote layout is mirrored under the staging base.
	for _, rel := range []string{
		"site/index.html",
		"site/img/logo.png",
		"site/img/icon.png",
		"site/notes/todo.md",
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestDownloadPathNonexistent(t *testing.T) {
	session := newFakeSession(nil)
	recorder := &eventRecorder{}
	d := NewDownloader(session, recorder.sink())

	files, size := d.DownloadPath("/nope", t.TempDir(), 0, 0)
	if files != 0 || size != 0 {
		t.Errorf("got %d files, %d bytes for missing path", files, size)
	}
	if recorder.find(EventWarning, "Path does not exist: /nope") == nil {
		t.Error("no warning for missing path")
	}
}

func TestDownloadPathExcludesDatabases(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/app/data.sqlite3": []byte("db"),
		"/app/data.txt":     []byte("ok"),
	})
	recorder := &eventRecorder{}
	d := NewDownloader(session, recorder.sink())

	dir := t.TempDir()
	files, _ := d.DownloadPath("/app", dir, 0, 2)

	if files != 1 {
		t.Fatalf("files = %d, want 1 (database file skipped)", files)
	}
	if _, err := os.Stat(filepath.Join(dir, "app", "data.sqlite3")); !os.IsNotExist(err) {
		t.Error("excluded file was downloaded")
	}
	if recorder.find(EventWarning, "Skipping locked database file") == nil {
		t.Error("no skip warning emitted")
	}
}

func TestDownloadPathSkipsFailedFile(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/app/good.txt": []byte("good"),
		"/app/bad.txt":  []byte("bad"),
	})
	session.dlErr["/app/bad.txt"] = fmt.Errorf("permission denied")

	recorder := &eventRecorder{}
	d := NewDownloader(session, recorder.sink())

	files, size := d.DownloadPath("/app", t.TempDir(), 0, 2)
	if files != 1 {
		t.Fatalf("files = %d, want 1 (one file failed)", files)
	}
	if size != int64(len("good")) {
		t.Errorf("size = %d", size)
	}
	if recorder.find(EventWarning, "Skipped locked file: /app/bad.txt") == nil {
		t.Error("no warning for the failed file")
	}
}

func TestDownloadPathDirectoryListError(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/locked/secret.txt": []byte("x"),
	})
	session.listErr["/locked"] = fmt.Errorf("permission denied")

	recorder := &eventRecorder{}
	d := NewDownloader(session, recorder.sink())

	files, _ := d.DownloadPath("/locked", t.TempDir(), 0, 1)
	if files != 0 {
		t.Errorf("files = %d, want 0", files)
	}
	if recorder.find(EventError, "Error accessing directory /locked") == nil {
		t.Error("no error event for unlistable directory")
	}
}

func TestDownloadProgressBand(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 100, 15},
		{50, 100, 45},
		{100, 100, 75},
		{200, 100, 75}, // clamped
		{5, 0, 15},     // zero denominator
	}

	for _, tt := range tests {
		if got := downloadProgress(tt.processed, tt.total); got != tt.want {
			t.Errorf("downloadProgress(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
		}
	}
}

func TestIsExcluded(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/data/app.sqlite", true},
		{"/data/app.sqlite3", true},
		{"/data/APP.DB", true},
		{"/data/app.dbf", false},
		{"/data/app.txt", false},
		{"/data/sqlite", false},
	}

	for _, tt := range tests {
		if got := isExcluded(tt.path); got != tt.want {
			t.Errorf("isExcluded(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
