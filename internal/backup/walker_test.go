package backup

import (
	"fmt"
	"testing"
)

type errSession struct {
	fakeSession
}

func (s *errSession) Execute(command string) (string, string, error) {
	return "", "", fmt.Errorf("connection reset")
}

func TestCountFiles(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/data/a.txt":        []byte("a"),
		"/data/sub/b.txt":    []byte("b"),
		"/data/sub/c/d.conf": []byte("d"),
		"/elsewhere/e.txt":   []byte("e"),
	})

	if got := CountFiles(session, "/data"); got != 3 {
		t.Errorf("CountFiles(/data) = %d, want 3", got)
	}
	if got := CountFiles(session, "/empty"); got != 0 {
		t.Errorf("CountFiles(/empty) = %d, want 0", got)
	}
}

func TestCountFilesRemoteError(t *testing.T) {
	if got := CountFiles(&errSession{}, "/data"); got != 0 {
		t.Errorf("CountFiles on broken session = %d, want 0", got)
	}
}

func TestListFiles(t *testing.T) {
	session := newFakeSession(map[string][]byte{
		"/data/a.txt": []byte("a"),
	})

	// The fake speaks only count/probe commands; ListFiles goes through the
	// same find invocation minus the pipe, so wire it manually.
	files := ListFiles(&findSession{fakeSession: session}, "/data")
	if len(files) != 1 || files[0] != "/data/a.txt" {
		t.Errorf("files = %v", files)
	}
}

func TestListFilesRemoteError(t *testing.T) {
	if files := ListFiles(&errSession{}, "/data"); files != nil {
		t.Errorf("files = %v, want nil", files)
	}
}

// findSession answers the bare find command with one path per line.
type findSession struct {
	*fakeSession
}

func (s *findSession) Execute(command string) (string, string, error) {
	path := quotedArg(command)
	out := ""
	for file := range s.files {
		if file == path || len(file) > len(path) && file[:len(path)+1] == path+"/" {
			out += file + "\n"
		}
	}
	return out, "", nil
}
