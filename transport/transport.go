// Package transport defines the remote execution surface the core engine
// depends on and provides a real SSH/SFTP implementation plus a
// local-shell fake for tests. The core never constructs a Transport
// itself — one is always injected.
package transport

import "context"

// Transport is the only shape of remote access the core issues: run a
// shell command and read back its stdout/stderr/exit status, or copy a
// local file to a remote path.
type Transport interface {
	// Run executes command on the remote shell and returns its captured
	// stdout, stderr and exit code. A non-nil error means the command
	// could not be executed at all (connection lost, session could not
	// be opened); a non-zero exitCode with a nil error means the command
	// ran and failed.
	Run(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error)

	// Put copies local to remote. Implementations may leave a partial
	// file at remote on failure; callers always re-verify by inventory
	// diff rather than relying on atomicity here.
	Put(ctx context.Context, local, remote string) error

	// Close releases any underlying connection. Idempotent.
	Close() error
}
