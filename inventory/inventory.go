// Package inventory produces content-addressed listings of a directory
// tree — path, size and MD5 triples — either by walking the local
// filesystem directly or by issuing a single shell command over a
// transport.Transport and parsing its output. The two realizations must
// agree on canonical form for identical inputs.
package inventory

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/shellquote"
	"github.com/abh/dateferry/transport"
)

// SentinelName is the twin-lock marker file; it is never part of an
// inventory.
const SentinelName = ".do-not-touch"

// MetaName is a legacy marker some older layouts leave behind in the
// source tree. It is ignored for the same reason the sentinel is.
const MetaName = "upload-meta.json"

const doneSentinel = "--- done ---"

// File is one entry in a Directory: a relative path, its size in bytes,
// and its MD5 digest.
type File struct {
	RelPath string
	Size    uint64
	MD5     [md5.Size]byte
}

// MD5Hex returns the lowercase hex encoding of the file's digest.
func (f File) MD5Hex() string { return hex.EncodeToString(f.MD5[:]) }

// Directory is an ordered set of File, sorted ascending by RelPath. Every
// RelPath is unique within a Directory.
type Directory struct {
	Files []File
}

// Subdirs returns every subdirectory prefix implied by the directory's
// files, sorted ascending. Used to pre-create the remote tree in one
// batched mkdir -p before uploading.
func (d *Directory) Subdirs() []string {
	set := map[string]struct{}{}
	for _, f := range d.Files {
		dir := path.Dir(f.RelPath)
		for dir != "." && dir != "/" && dir != "" {
			set[dir] = struct{}{}
			dir = path.Dir(dir)
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Filter returns a new Directory containing only the file at relPath, if
// present. Used by the file-item transfer path, where the remote
// destination root holds many unrelated items and only one entry matters.
func (d *Directory) Filter(relPath string) *Directory {
	out := &Directory{}
	for _, f := range d.Files {
		if f.RelPath == relPath {
			out.Files = append(out.Files, f)
		}
	}
	return out
}

func sortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
}

func ignoredBasename(name string) bool {
	return name == SentinelName || name == MetaName
}

// ScreenLocal walks root on the local filesystem and returns a canonical
// Directory of every regular file found, up to maxDepth levels (0 means
// unlimited). Reserved filenames are excluded.
func ScreenLocal(root string, maxDepth int) (*Directory, error) {
	var files []File

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if d.IsDir() {
			if maxDepth > 0 && depth > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if maxDepth > 0 && depth > maxDepth {
			return nil
		}
		if ignoredBasename(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		sum, err := md5File(p)
		if err != nil {
			return err
		}
		files = append(files, File{RelPath: rel, Size: uint64(info.Size()), MD5: sum})
		return nil
	})
	if err != nil {
		return nil, &dateferry.IoError{Path: root, Err: err}
	}

	sortFiles(files)
	return &Directory{Files: files}, nil
}

func md5File(path string) ([md5.Size]byte, error) {
	var sum [md5.Size]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ScreenRemote issues the canonical inventory command against root over t
// and parses its output into a Directory. The command's two-space field
// separator and "--- done ---" sentinel are a miniature wire protocol;
// truncated or malformed output is rejected rather than returning a
// partial inventory.
func ScreenRemote(ctx context.Context, t transport.Transport, root string, maxDepth int) (*Directory, error) {
	depthClause := ""
	if maxDepth > 0 {
		depthClause = fmt.Sprintf(" -maxdepth %d", maxDepth)
	}
	cmd := fmt.Sprintf(
		`cd %s && find .%s -type f -exec sh -c 'echo "$(stat -c %%s {})  $(md5sum {})"' \; && echo '%s'`,
		shellquote.Quote(root), depthClause, doneSentinel,
	)

	stdout, stderr, exitCode, err := t.Run(ctx, cmd)
	if err != nil {
		return nil, &dateferry.TransportError{Err: err}
	}
	if exitCode != 0 {
		return nil, &dateferry.RemoteCommandError{Command: cmd, Stderr: stderr, ExitCode: exitCode}
	}

	lines := nonEmptyLines(stdout)
	if len(lines) == 0 || lines[len(lines)-1] != doneSentinel {
		return nil, &dateferry.RemoteCommandError{
			Command: cmd, Stderr: "missing inventory sentinel, output may be truncated", ExitCode: exitCode,
		}
	}

	data := lines[:len(lines)-1]
	files := make([]File, 0, len(data))
	for _, line := range data {
		f, err := parseInventoryLine(line)
		if err != nil {
			return nil, &dateferry.RemoteCommandError{Command: cmd, Stderr: err.Error(), ExitCode: exitCode}
		}
		if ignoredBasename(path.Base(f.RelPath)) {
			continue
		}
		files = append(files, f)
	}

	sortFiles(files)
	return &Directory{Files: files}, nil
}

func nonEmptyLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func parseInventoryLine(line string) (File, error) {
	parts := strings.SplitN(line, "  ", 3)
	if len(parts) != 3 {
		return File{}, fmt.Errorf("unparsable inventory line: %q", line)
	}

	size, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("unparsable size in inventory line: %q", line)
	}

	raw, err := hex.DecodeString(parts[1])
	if err != nil || len(raw) != md5.Size {
		return File{}, fmt.Errorf("unparsable md5 in inventory line: %q", line)
	}
	var sum [md5.Size]byte
	copy(sum[:], raw)

	rel := strings.TrimPrefix(parts[2], "./")
	if rel == "" {
		return File{}, fmt.Errorf("empty relative path in inventory line: %q", line)
	}

	return File{RelPath: rel, Size: size, MD5: sum}, nil
}
