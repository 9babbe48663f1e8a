package backup

import (
	"fmt"
	"strconv"
	"strings"
)

// CountFiles runs a remote recursive file count under path. Returns 0 on any
// remote error: the count only sizes the progress denominator, so one
// uncountable root must not abort the job.
func CountFiles(session Session, path string) int {
	stdout, _, err := session.Execute(fmt.Sprintf("find %q -type f | wc -l", path))
	if err != nil {
		return 0
	}

	count, err := strconv.Atoi(strings.TrimSpace(stdout))
	if err != nil || count < 0 {
		return 0
	}

	return count
}

// ListFiles returns the absolute paths of all regular files under path.
// Empty on any remote error.
func ListFiles(session Session, path string) []string {
	stdout, _, err := session.Execute(fmt.Sprintf("find %q -type f", path))
	if err != nil {
		return nil
	}

	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			files = append(files, trimmed)
		}
	}

	return files
}
