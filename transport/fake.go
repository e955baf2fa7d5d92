package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// FakeTransport stands in for a real SSH+SFTP connection in tests by
// treating a local directory as the "remote" endpoint and executing the
// exact same POSIX shell commands the real transport would send, via
// sh -c. This exercises the real remote-command contract (find, stat,
// md5sum, mkdir, touch, rm) without needing a live SSH server.
type FakeTransport struct {
	Root string
}

// NewFake returns a FakeTransport rooted at root, which must already
// exist.
func NewFake(root string) *FakeTransport {
	return &FakeTransport{Root: root}
}

// Run implements Transport by handing command to sh -c.
func (f *FakeTransport) Run(ctx context.Context, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	return stdout.String(), stderr.String(), -1, fmt.Errorf("fake transport: run: %w", err)
}

// Put implements Transport with a plain file copy.
func (f *FakeTransport) Put(ctx context.Context, local, remote string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("fake transport: open local file: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(remote), 0o755); err != nil {
		return fmt.Errorf("fake transport: mkdir remote dir: %w", err)
	}
	dst, err := os.Create(remote)
	if err != nil {
		return fmt.Errorf("fake transport: create remote file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("fake transport: copy to remote: %w", err)
	}
	return nil
}

// Close implements Transport; a FakeTransport has no connection to close.
func (f *FakeTransport) Close() error { return nil }
