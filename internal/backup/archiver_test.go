package backup

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeStagingFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateArchive(t *testing.T) {
	staging := t.TempDir()
	writeStagingFile(t, staging, "site/index.html", "<html>")
	writeStagingFile(t, staging, "site/css/main.css", "body {}")
	writeStagingFile(t, staging, "config.yaml", "port: 5000")

	archivePath := filepath.Join(t.TempDir(), "backup_20250101_120000.zip")

	added, err := CreateArchive(staging, archivePath, nil)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer reader.Close()

	var names []string
	contents := make(map[string]string)
	for _, entry := range reader.File {
		names = append(names, entry.Name)

		rc, err := entry.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		contents[entry.Name] = string(data)
	}
	sort.Strings(names)

	want := []string{"config.yaml", "site/css/main.css", "site/index.html"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entries = %v, want %v", names, want)
		}
	}
	if contents["site/index.html"] != "<html>" {
		t.Errorf("index.html content = %q", contents["site/index.html"])
	}
}

func TestCreateArchiveEmptyStaging(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "backup_empty.zip")

	added, err := CreateArchive(t.TempDir(), archivePath, nil)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}

	// A valid empty zip is still produced.
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("empty archive unreadable: %v", err)
	}
	reader.Close()
}

func TestCreateArchiveEmitsThrottledProgress(t *testing.T) {
	staging := t.TempDir()
	for i := 0; i < 25; i++ {
		writeStagingFile(t, staging, filepath.Join("logs", string(rune('a'+i))+".log"), "line")
	}

	recorder := &eventRecorder{}
	archivePath := filepath.Join(t.TempDir(), "backup_many.zip")

	if _, err := CreateArchive(staging, archivePath, recorder.sink()); err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	compressing := 0
	for _, event := range recorder.all() {
		if event.Type == EventInfo && event.CurrentFile != "" {
			compressing++
			if event.Progress == nil {
				t.Fatal("compression event without progress")
			}
			if *event.Progress < 80 || *event.Progress > 95 {
				t.Errorf("compression progress %d outside 80-95 band", *event.Progress)
			}
		}
	}

	// 25 files at one event per 10 files: indexes 0, 10, 20.
	if compressing != 3 {
		t.Errorf("compression events = %d, want 3", compressing)
	}
}

func TestCompressProgressBand(t *testing.T) {
	tests := []struct {
		index, total, want int
	}{
		{0, 10, 80},
		{5, 10, 87},
		{10, 10, 95},
		{50, 10, 95}, // clamped
		{3, 0, 80},   // zero denominator
	}

	for _, tt := range tests {
		if got := compressProgress(tt.index, tt.total); got != tt.want {
			t.Errorf("compressProgress(%d, %d) = %d, want %d", tt.index, tt.total, got, tt.want)
		}
	}
}
