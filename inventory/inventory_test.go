package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/abh/dateferry/transport"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestScreenLocalBasics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")
	writeFile(t, filepath.Join(root, SentinelName), "")
	writeFile(t, filepath.Join(root, MetaName), "{}")

	dir, err := ScreenLocal(root, 0)
	if err != nil {
		t.Fatalf("ScreenLocal: %v", err)
	}
	if len(dir.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(dir.Files), dir.Files)
	}
	if dir.Files[0].RelPath != "a.txt" || dir.Files[1].RelPath != "sub/b.txt" {
		t.Fatalf("unexpected relpaths: %+v", dir.Files)
	}
	if dir.Files[0].Size != 5 {
		t.Fatalf("a.txt size = %d, want 5", dir.Files[0].Size)
	}
}

func TestScreenLocalMaxDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")

	dir, err := ScreenLocal(root, 1)
	if err != nil {
		t.Fatalf("ScreenLocal: %v", err)
	}
	if len(dir.Files) != 1 || dir.Files[0].RelPath != "a.txt" {
		t.Fatalf("unexpected files at depth 1: %+v", dir.Files)
	}
}

func TestScreenRemoteRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")

	ft := transport.NewFake(root)
	dir, err := ScreenRemote(context.Background(), ft, root, 0)
	if err != nil {
		t.Fatalf("ScreenRemote: %v", err)
	}
	if len(dir.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(dir.Files), dir.Files)
	}
	if dir.Files[0].RelPath != "a.txt" || dir.Files[1].RelPath != "sub/b.txt" {
		t.Fatalf("unexpected relpaths: %+v", dir.Files)
	}
}

func TestScreenLocalAndRemoteAgree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")

	local, err := ScreenLocal(root, 0)
	if err != nil {
		t.Fatalf("ScreenLocal: %v", err)
	}
	ft := transport.NewFake(root)
	remote, err := ScreenRemote(context.Background(), ft, root, 0)
	if err != nil {
		t.Fatalf("ScreenRemote: %v", err)
	}

	if len(local.Files) != len(remote.Files) {
		t.Fatalf("local has %d files, remote has %d", len(local.Files), len(remote.Files))
	}
	for i := range local.Files {
		if local.Files[i] != remote.Files[i] {
			t.Fatalf("entry %d differs: local=%+v remote=%+v", i, local.Files[i], remote.Files[i])
		}
	}
}

func TestScreenRemoteMissingSentinelIsFatal(t *testing.T) {
	root := t.TempDir()
	ft := &truncatingTransport{inner: transport.NewFake(root)}

	_, err := ScreenRemote(context.Background(), ft, root, 0)
	if err == nil {
		t.Fatal("expected error for missing sentinel")
	}
}

// truncatingTransport drops the trailing sentinel line to simulate a
// truncated remote command.
type truncatingTransport struct {
	inner *transport.FakeTransport
}

func (t *truncatingTransport) Run(ctx context.Context, command string) (string, string, int, error) {
	stdout, stderr, code, err := t.inner.Run(ctx, command)
	if err != nil || code != 0 {
		return stdout, stderr, code, err
	}
	// Drop everything from the sentinel onward.
	idx := indexSentinel(stdout)
	if idx >= 0 {
		stdout = stdout[:idx]
	}
	return stdout, stderr, code, err
}

func indexSentinel(s string) int {
	const marker = "--- done ---"
	for i := 0; i+len(marker) <= len(s); i++ {
		if s[i:i+len(marker)] == marker {
			return i
		}
	}
	return -1
}

func (t *truncatingTransport) Put(ctx context.Context, local, remote string) error {
	return t.inner.Put(ctx, local, remote)
}

func (t *truncatingTransport) Close() error { return t.inner.Close() }

func TestDirectorySubdirs(t *testing.T) {
	dir := &Directory{Files: []File{
		{RelPath: "a.txt"},
		{RelPath: "sub/b.txt"},
		{RelPath: "sub/deep/c.txt"},
	}}
	subdirs := dir.Subdirs()
	want := []string{"sub", "sub/deep"}
	if len(subdirs) != len(want) {
		t.Fatalf("subdirs = %v, want %v", subdirs, want)
	}
	for i := range want {
		if subdirs[i] != want[i] {
			t.Fatalf("subdirs = %v, want %v", subdirs, want)
		}
	}
}

func TestDirectoryFilter(t *testing.T) {
	dir := &Directory{Files: []File{
		{RelPath: "20240101.dat", Size: 1},
		{RelPath: "20240102.dat", Size: 2},
	}}
	filtered := dir.Filter("20240101.dat")
	if len(filtered.Files) != 1 || filtered.Files[0].RelPath != "20240101.dat" {
		t.Fatalf("Filter result = %+v", filtered.Files)
	}
}
