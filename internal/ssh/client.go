package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Connection error classification.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrConnectionFailed     = errors.New("connection failed")
)

// ClientConfig holds SSH connection configuration
type ClientConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Timeout         time.Duration
	KnownHostsPath  string
	TrustOnFirstUse bool
}

// Client wraps an SSH connection and its SFTP channel
type Client struct {
	config      *ClientConfig
	client      *ssh.Client
	sftpClient  *sftp.Client
	connectedAt time.Time
}

// NewClient creates a new SSH client and connects immediately
func NewClient(config *ClientConfig) (*Client, error) {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client := &Client{
		config: config,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes the SSH connection
func (c *Client) connect() error {
	hostKeyCallback, err := NewHostKeyCallback(c.config.KnownHostsPath, c.config.TrustOnFirstUse)
	if err != nil {
		return fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(c.config.Password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.Timeout,
	}

	address := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	client, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		return classifyDialError(err)
	}

	c.client = client
	c.connectedAt = time.Now()

	return nil
}

// classifyDialError maps dial failures to the connection error taxonomy
func classifyDialError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return fmt.Errorf("%w: invalid username or password", ErrAuthenticationFailed)
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

// Execute runs a one-shot remote command and returns stdout and stderr
func (c *Client) Execute(command string) (string, string, error) {
	if c.client == nil {
		return "", "", fmt.Errorf("not connected")
	}

	session, err := c.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("command failed: %w", err)
	}

	return stdout.String(), stderr.String(), nil
}

// RunCommand executes a command and returns combined output
func (c *Client) RunCommand(command string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("not connected")
	}

	session, err := c.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command failed: %w", err)
	}

	return string(output), nil
}

// sftp lazily opens the file-transfer channel
func (c *Client) sftp() (*sftp.Client, error) {
	if c.sftpClient != nil {
		return c.sftpClient, nil
	}
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	client, err := sftp.NewClient(c.client,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentReads(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	c.sftpClient = client
	return client, nil
}

// Download copies a remote file to a local path and returns its size
func (c *Client) Download(remotePath, localPath string) (int64, error) {
	sftpClient, err := c.sftp()
	if err != nil {
		return 0, err
	}

	src, err := sftpClient.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open remote file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(localPath)
		return 0, fmt.Errorf("failed to copy remote file: %w", err)
	}

	return written, nil
}

// ListDir returns the names of the immediate entries of a remote directory
func (c *Client) ListDir(remotePath string) ([]string, error) {
	sftpClient, err := c.sftp()
	if err != nil {
		return nil, err
	}

	entries, err := sftpClient.ReadDir(remotePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names, nil
}

// ConnectedAt returns when the connection was established
func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// Close releases the SFTP channel and the SSH connection. Idempotent.
func (c *Client) Close() error {
	if c.sftpClient != nil {
		c.sftpClient.Close()
		c.sftpClient = nil
	}
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// connectionTestCommand must echo this exact marker for the test to pass.
const connectionTestMarker = "Connection test successful"

// TestConnection dials a server, runs a known echo command and validates the
// output. It never returns an error; failures are reported as a message.
func TestConnection(config *ClientConfig) (bool, string) {
	client, err := NewClient(config)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthenticationFailed):
			return false, "Authentication failed - Invalid username or password"
		case errors.Is(err, ErrConnectionFailed):
			return false, fmt.Sprintf("Connection failed: %v", err)
		default:
			return false, fmt.Sprintf("Connection failed: %v", err)
		}
	}
	defer client.Close()

	stdout, _, err := client.Execute(fmt.Sprintf("echo %q", connectionTestMarker))
	if err != nil {
		return false, fmt.Sprintf("Connection test failed: %v", err)
	}

	if !strings.Contains(stdout, connectionTestMarker) {
		return false, "Connection test failed"
	}

	return true, "Connection successful"
}
