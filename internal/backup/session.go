package backup

// Session is the remote shell plus file-transfer channel a backup job runs
// against. Satisfied by *ssh.Client; tests substitute fakes.
type Session interface {
	// Execute runs a one-shot remote command and returns stdout and stderr.
	Execute(command string) (string, string, error)

	// Download copies a remote file to a local path and returns its size.
	Download(remotePath, localPath string) (int64, error)

	// ListDir returns the names of the immediate entries of a remote directory.
	ListDir(remotePath string) ([]string, error)

	// Close releases the command and file-transfer channels. Idempotent.
	Close() error
}
