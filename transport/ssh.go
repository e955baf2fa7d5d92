package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig holds the connection parameters for SSHTransport.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	PrivateKeyPath string
	KnownHostsPath string
	Timeout        time.Duration
}

func (c SSHConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SSHTransport runs commands over an SSH session and copies files over
// SFTP. One SSHTransport wraps one persistent connection; callers may
// issue many Run/Put calls against it.
type SSHTransport struct {
	client *ssh.Client
	sftp   *sftp.Client
}

// Dial opens an SSH connection and an SFTP subsystem session on top of it.
func Dial(cfg SSHConfig) (*SSHTransport, error) {
	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("transport: parse private key: %w", err)
	}

	hostKeyCallback, err := knownhosts.New(cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("transport: load known_hosts: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", cfg.addr(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", cfg.addr(), err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("transport: open sftp subsystem: %w", err)
	}

	return &SSHTransport{client: client, sftp: sftpClient}, nil
}

// Run implements Transport.
func (t *SSHTransport) Run(ctx context.Context, command string) (string, string, int, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("transport: new ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), -1, ctx.Err()
	case runErr := <-done:
		if runErr == nil {
			return stdout.String(), stderr.String(), 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), -1, fmt.Errorf("transport: run remote command: %w", runErr)
	}
}

// Put implements Transport using SFTP.
func (t *SSHTransport) Put(ctx context.Context, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("transport: open local file: %w", err)
	}
	defer src.Close()

	if err := t.sftp.MkdirAll(path.Dir(remote)); err != nil {
		return fmt.Errorf("transport: mkdir remote dir: %w", err)
	}

	dst, err := t.sftp.Create(remote)
	if err != nil {
		return fmt.Errorf("transport: create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("transport: copy to remote: %w", err)
	}
	return ctx.Err()
}

// Close implements Transport.
func (t *SSHTransport) Close() error {
	var firstErr error
	if t.sftp != nil {
		firstErr = t.sftp.Close()
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
