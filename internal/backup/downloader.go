package backup

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// File extensions that are skipped during download. These are database files
// that may be locked on the remote host and fail (or corrupt) mid-transfer.
var excludedExtensions = []string{".sqlite", ".sqlite3", ".db"}

// Progress bands on the 0-100 scale: 0-15 connect/analyze, 15-75 download,
// 75-80 reserved, 80-95 compress, 95-100 finalize. The UI depends on these
// exact bands.
const (
	downloadBandStart = 15
	downloadBandWidth = 60
	compressBandStart = 80
	compressBandWidth = 15
)

// Downloader mirrors remote path trees into a local staging directory.
type Downloader struct {
	session Session
	sink    Sink
}

// NewDownloader creates a downloader bound to one session and sink.
func NewDownloader(session Session, sink Sink) *Downloader {
	return &Downloader{
		session: session,
		sink:    sink,
	}
}

// DownloadPath recursively mirrors remotePath into localBase and returns the
// number of files and bytes successfully transferred. Per-file and per-child
// failures emit a warning or error event and are skipped; only a nonexistent
// root is reported, never fatal.
func (d *Downloader) DownloadPath(remotePath, localBase string, filesProcessed, totalFiles int) (int, int64) {
	stdout, _, err := d.session.Execute(fmt.Sprintf("test -e %q && echo \"exists\"", remotePath))
	if err != nil || !strings.Contains(stdout, "exists") {
		emit(d.sink, Event{
			Type:    EventWarning,
			Message: fmt.Sprintf("Path does not exist: %s", remotePath),
		})
		return 0, 0
	}

	stdout, _, err = d.session.Execute(fmt.Sprintf("test -f %q && echo \"file\" || echo \"dir\"", remotePath))
	if err != nil {
		emit(d.sink, Event{
			Type:    EventError,
			Message: fmt.Sprintf("Error probing %s: %v", remotePath, err),
		})
		return 0, 0
	}

	localPath := filepath.Join(localBase, path.Base(remotePath))

	if strings.TrimSpace(stdout) == "file" {
		return d.downloadFile(remotePath, localPath, filesProcessed, totalFiles)
	}

	return d.downloadDirectory(remotePath, localPath, filesProcessed, totalFiles)
}

func (d *Downloader) downloadFile(remotePath, localPath string, filesProcessed, totalFiles int) (int, int64) {
	if isExcluded(remotePath) {
		emit(d.sink, Event{
			Type:    EventWarning,
			Message: fmt.Sprintf("Skipping locked database file: %s", remotePath),
		})
		return 0, 0
	}

	emit(d.sink, Event{
		Type:        EventInfo,
		Message:     fmt.Sprintf("Downloading: %s", remotePath),
		Progress:    progressPtr(downloadProgress(filesProcessed, totalFiles)),
		CurrentFile: remotePath,
	})

	size, err := d.session.Download(remotePath, localPath)
	if err != nil {
		emit(d.sink, Event{
			Type:    EventWarning,
			Message: fmt.Sprintf("Skipped locked file: %s - %v", remotePath, err),
		})
		return 0, 0
	}

	emit(d.sink, Event{
		Type:    EventSuccess,
		Message: fmt.Sprintf("Downloaded: %s (%d bytes)", remotePath, size),
	})

	return 1, size
}

func (d *Downloader) downloadDirectory(remotePath, localPath string, filesProcessed, totalFiles int) (int, int64) {
	if err := os.MkdirAll(localPath, 0755); err != nil {
		emit(d.sink, Event{
			Type:    EventError,
			Message: fmt.Sprintf("Error creating local directory for %s: %v", remotePath, err),
		})
		return 0, 0
	}

	children, err := d.session.ListDir(remotePath)
	if err != nil {
		emit(d.sink, Event{
			Type:    EventError,
			Message: fmt.Sprintf("Error accessing directory %s: %v", remotePath, err),
		})
		return 0, 0
	}

	filesDownloaded := 0
	var totalSize int64

	for _, child := range children {
		childPath := remotePath + "/" + child
		subFiles, subSize := d.DownloadPath(childPath, localPath, filesProcessed+filesDownloaded, totalFiles)
		filesDownloaded += subFiles
		totalSize += subSize
	}

	return filesDownloaded, totalSize
}

// downloadProgress maps a file counter onto the 15-75 download band.
func downloadProgress(filesProcessed, totalFiles int) int {
	if totalFiles <= 0 {
		return downloadBandStart
	}

	progress := downloadBandStart + filesProcessed*downloadBandWidth/totalFiles
	if progress > downloadBandStart+downloadBandWidth {
		progress = downloadBandStart + downloadBandWidth
	}
	return progress
}

func isExcluded(remotePath string) bool {
	lower := strings.ToLower(remotePath)
	for _, ext := range excludedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
