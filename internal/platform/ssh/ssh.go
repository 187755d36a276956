// Package ssh provides the authenticated channel to the build host:
// command execution, file upload, and reachability waiting with bounded
// retry. Connections are created per call; the private key is parsed once
// during construction.
//
// Security: host key verification is disabled by default because the
// build hosts are ephemeral and freshly provisioned each run. Configure
// HostKeyCallback when pointing at persistent machines.
package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/metalbuild/metalbuild/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 60
	defaultRetryDelay  = 5 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Communicator is the remote-execution surface the pipeline stages use.
// The production implementation is Client; tests substitute fakes.
//
// Upload and Download move small in-memory payloads (rendered configs,
// file listings). UploadFile and DownloadFile stream between the remote
// host and a local file and are the only transfer path for disk images,
// which do not fit in memory.
type Communicator interface {
	Execute(ctx context.Context, command string) (string, error)
	Upload(ctx context.Context, remotePath string, data []byte, mode uint32) error
	Download(ctx context.Context, remotePath string) ([]byte, error)
	UploadFile(ctx context.Context, remotePath, localPath string, mode uint32) error
	DownloadFile(ctx context.Context, remotePath, localPath string) error
}

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used (suitable for ephemeral infrastructure).
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on a remote server via SSH.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	// Copy config to avoid mutating caller's struct
	configCopy := *cfg

	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // Default for ephemeral infrastructure
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{
		config: &configCopy,
		signer: signer,
	}, nil
}

// Execute runs a command on the remote host with retry logic.
// Returns command output (stdout+stderr) and any execution error.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(client, command)
}

// Upload copies data to remotePath using the scp sink protocol. The
// parent directory must already exist on the remote side.
func (c *Client) Upload(ctx context.Context, remotePath string, data []byte, mode uint32) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	dir, base := path.Split(remotePath)
	if dir == "" {
		dir = "."
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() { _ = stdin.Close() }()
		if _, err := fmt.Fprintf(stdin, "C%04o %d %s\n", mode, len(data), base); err != nil {
			errCh <- err
			return
		}
		if _, err := stdin.Write(data); err != nil {
			errCh <- err
			return
		}
		_, err := stdin.Write([]byte{0})
		errCh <- err
	}()

	if err := session.Run(fmt.Sprintf("scp -t %s", dir)); err != nil {
		return fmt.Errorf("scp upload of %s to %s failed: %w", base, c.config.Host, err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("scp stream write failed: %w", err)
	}

	return nil
}

// UploadFile streams a local file to remotePath using the scp sink
// protocol. The file is never held in memory; io.Copy moves it in
// fixed-size chunks.
func (c *Client) UploadFile(ctx context.Context, remotePath, localPath string, mode uint32) error {
	f, err := os.Open(localPath) // #nosec G304 - path comes from the pipeline's own staging
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	dir, base := path.Split(remotePath)
	if dir == "" {
		dir = "."
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() { _ = stdin.Close() }()
		if _, err := fmt.Fprintf(stdin, "C%04o %d %s\n", mode, info.Size(), base); err != nil {
			errCh <- err
			return
		}
		if _, err := io.Copy(stdin, f); err != nil {
			errCh <- err
			return
		}
		_, err := stdin.Write([]byte{0})
		errCh <- err
	}()

	if err := session.Run(fmt.Sprintf("scp -t %s", dir)); err != nil {
		return fmt.Errorf("scp upload of %s to %s failed: %w", base, c.config.Host, err)
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("scp stream write failed: %w", err)
	}

	return nil
}

// DownloadFile streams a remote file into localPath. Like UploadFile the
// payload is copied in chunks, never buffered whole.
func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	f, err := os.Create(localPath) // #nosec G304 - path comes from the pipeline's own staging
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if err := session.Start(fmt.Sprintf("cat -- %s", remotePath)); err != nil {
		return fmt.Errorf("failed to read %s on %s: %w", remotePath, c.config.Host, err)
	}
	if _, err := io.Copy(f, stdout); err != nil {
		return fmt.Errorf("failed to stream %s: %w", remotePath, err)
	}
	if err := session.Wait(); err != nil {
		return fmt.Errorf("failed to read %s on %s: %w", remotePath, c.config.Host, err)
	}

	return nil
}

// Download reads a remote file's contents. Stdout only; remote stderr is
// discarded so binary payloads come back unmixed.
func (c *Client) Download(ctx context.Context, remotePath string) ([]byte, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	data, err := session.Output(fmt.Sprintf("cat -- %s", remotePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s on %s: %w", remotePath, c.config.Host, err)
	}
	return data, nil
}

// connect establishes SSH connection with retry logic.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: c.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.signer),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	var client *ssh.Client

	// Freshly launched instances can take a while before sshd answers.
	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s after %d retry attempts: %w",
			addr, c.config.MaxRetries, err)
	}

	return client, nil
}

// runCommand executes a command on an established SSH session.
func (c *Client) runCommand(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			c.config.Host, err, command, string(output))
	}

	return string(output), nil
}
