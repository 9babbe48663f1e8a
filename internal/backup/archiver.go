package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// compressionEmitEvery throttles compression progress events so the sink is
// not flooded with one event per file.
const compressionEmitEvery = 10

// CreateArchive compresses the staging tree into a single zip file, using
// paths relative to the staging root as entry names. A file that cannot be
// added emits a warning event and is skipped. Returns the number of entries
// written.
func CreateArchive(stagingDir, archivePath string, sink Sink) (int, error) {
	var filesToZip []string
	err := filepath.WalkDir(stagingDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			filesToZip = append(filesToZip, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk staging directory: %w", err)
	}

	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer archiveFile.Close()

	writer := zip.NewWriter(archiveFile)

	added := 0
	for i, filePath := range filesToZip {
		entryName, err := filepath.Rel(stagingDir, filePath)
		if err != nil {
			entryName = filepath.Base(filePath)
		}
		entryName = filepath.ToSlash(entryName)

		if err := addArchiveEntry(writer, filePath, entryName); err != nil {
			emit(sink, Event{
				Type:    EventWarning,
				Message: fmt.Sprintf("Skipped file during compression: %s - %v", entryName, err),
			})
			continue
		}
		added++

		if i%compressionEmitEvery == 0 {
			emit(sink, Event{
				Type:        EventInfo,
				Message:     fmt.Sprintf("Compressing: %s", entryName),
				Progress:    progressPtr(compressProgress(i, len(filesToZip))),
				CurrentFile: entryName,
			})
		}
	}

	if err := writer.Close(); err != nil {
		return added, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return added, nil
}

func addArchiveEntry(writer *zip.Writer, filePath, entryName string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = entryName
	header.Method = zip.Deflate

	entry, err := writer.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(entry, file)
	return err
}

// compressProgress maps an entry index onto the 80-95 compression band.
func compressProgress(index, totalFiles int) int {
	if totalFiles <= 0 {
		return compressBandStart
	}

	progress := compressBandStart + index*compressBandWidth/totalFiles
	if progress > compressBandStart+compressBandWidth {
		progress = compressBandStart + compressBandWidth
	}
	return progress
}
