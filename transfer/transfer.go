// Package transfer orchestrates a single item's upload: screen, diff,
// lock, upload missing files, re-verify, release, and apply the removal
// policy. It is the direct analog of abh/rrrgo's recentfile aggregation
// step, but oriented around a two-sided advisory lock and content
// verification instead of RECENT's epoch/serializer protocol.
package transfer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/callback"
	"github.com/abh/dateferry/diffengine"
	"github.com/abh/dateferry/inventory"
	"github.com/abh/dateferry/shellquote"
	"github.com/abh/dateferry/transport"
	"github.com/abh/dateferry/twinlock"
)

// Outcome reports how a single item's transfer concluded.
type Outcome int

const (
	Successful Outcome = iota
	Failed
	Aborted
	NoFilesFound
)

func (o Outcome) String() string {
	switch o {
	case Successful:
		return "successful"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	case NoFilesFound:
		return "no_files_found"
	default:
		return "unknown"
	}
}

// Result carries the outcome of processing one item plus the counters an
// UploadSession needs to fold into its RunStats.
type Result struct {
	Outcome       Outcome
	FilesUploaded int
	BytesUploaded uint64
}

// Engine processes one item at a time against a single remote endpoint.
// It is not safe for concurrent use; the session drives it serially.
type Engine struct {
	Transport         transport.Transport
	Surface           *callback.Surface
	RemoveAfterUpload bool
	MaxDepth          int

	// progressEvery bounds how often the "X% uploaded" log line fires
	// during a long upload. Zero means the documented 60s default.
	progressEvery time.Duration
}

// New returns an Engine ready to process items over t, reporting through
// surface.
func New(t transport.Transport, surface *callback.Surface, removeAfterUpload bool, maxDepth int) *Engine {
	return &Engine{Transport: t, Surface: surface, RemoveAfterUpload: removeAfterUpload, MaxDepth: maxDepth}
}

func (e *Engine) progressInterval() time.Duration {
	if e.progressEvery > 0 {
		return e.progressEvery
	}
	return 60 * time.Second
}

// ProcessItem runs the directory-item algorithm for item, a subdirectory
// shared by srcRoot and dstRoot.
func (e *Engine) ProcessItem(ctx context.Context, srcRoot, dstRoot, item string) (Result, error) {
	srcDir := filepath.Join(srcRoot, item)
	dstDir := path.Join(dstRoot, item)

	local, err := inventory.ScreenLocal(srcDir, e.MaxDepth)
	if err != nil {
		return Result{Outcome: Failed}, err
	}

	if _, _, exitCode, err := e.Transport.Run(ctx, fmt.Sprintf("mkdir -p %s", shellquote.Quote(dstDir))); err != nil {
		return Result{Outcome: Failed}, &dateferry.TransportError{Err: err}
	} else if exitCode != 0 {
		return Result{Outcome: Failed}, fmt.Errorf("transfer: mkdir -p %s failed", dstDir)
	}

	remote, err := inventory.ScreenRemote(ctx, e.Transport, dstDir, e.MaxDepth)
	if err != nil {
		return Result{Outcome: Failed}, err
	}

	if len(local.Files) == 0 {
		outcome := NoFilesFound
		e.Surface.Info(fmt.Sprintf("%s: no files found", item))
		e.applyRemoval(srcDir, outcome)
		return Result{Outcome: outcome}, nil
	}

	diffResult := diffengine.Diff(local, remote)
	if len(diffResult.MissingRemote) == 0 {
		outcome := Successful
		e.Surface.Info(fmt.Sprintf("%s: already in sync (%d files)", item, len(diffResult.InSync)))
		e.applyRemoval(srcDir, outcome)
		return Result{Outcome: outcome}, nil
	}

	result, err := e.uploadAndVerify(ctx, srcDir, dstDir, item, local, diffResult.MissingRemote)
	e.applyRemoval(srcDir, result.Outcome)
	return result, err
}

// ProcessFileItem runs the file-item algorithm for item, a single dated
// file living directly under srcRoot/dstRoot. The lock and remote
// inventory are scoped to the shared root, since a file-item has no
// subdirectory of its own, and the remote listing is filtered down to
// just this item so other unrelated dated files at the same root don't
// influence the diff or the verification pass.
func (e *Engine) ProcessFileItem(ctx context.Context, srcRoot, dstRoot, item string) (Result, error) {
	srcPath := filepath.Join(srcRoot, item)

	local, err := inventory.ScreenLocal(srcRoot, 1)
	if err != nil {
		return Result{Outcome: Failed}, err
	}
	local = local.Filter(item)
	if len(local.Files) == 0 {
		// The file vanished between listing and processing.
		outcome := NoFilesFound
		e.Surface.Info(fmt.Sprintf("%s: no files found", item))
		return Result{Outcome: outcome}, nil
	}

	remoteFull, err := inventory.ScreenRemote(ctx, e.Transport, dstRoot, 1)
	if err != nil {
		return Result{Outcome: Failed}, err
	}
	remote := remoteFull.Filter(item)

	diffResult := diffengine.Diff(local, remote)
	if len(diffResult.MissingRemote) == 0 {
		outcome := Successful
		e.Surface.Info(fmt.Sprintf("%s: already in sync", item))
		e.applyRemovalFile(srcPath, outcome)
		return Result{Outcome: outcome}, nil
	}

	result, err := e.uploadAndVerify(ctx, srcRoot, dstRoot, item, local, diffResult.MissingRemote)
	if result.Outcome == Successful || result.Outcome == NoFilesFound {
		e.applyRemovalFile(srcPath, result.Outcome)
	}
	return result, err
}

// uploadAndVerify drives steps 5-9 of the directory algorithm: batched
// mkdir -p, lock, sequential uploads with abort polling, re-verification,
// and release. The removal policy is applied by the caller. Callers scoped to a
// single file-item skip the batched mkdir, since Subdirs() is empty for a
// one-entry Directory.
func (e *Engine) uploadAndVerify(
	ctx context.Context, srcDir, dstDir, item string, local *inventory.Directory, missing []inventory.File,
) (Result, error) {
	if subdirs := local.Subdirs(); len(subdirs) > 0 {
		full := make([]string, len(subdirs))
		for i, s := range subdirs {
			full[i] = path.Join(dstDir, s)
		}
		cmd := "mkdir -p " + shellquote.Join(full...)
		if _, stderr, exitCode, err := e.Transport.Run(ctx, cmd); err != nil {
			return Result{Outcome: Failed}, &dateferry.TransportError{Err: err}
		} else if exitCode != 0 {
			return Result{Outcome: Failed}, &dateferry.RemoteCommandError{Command: cmd, Stderr: stderr, ExitCode: exitCode}
		}
	}

	lock := twinlock.New(srcDir, dstDir, e.Transport)
	if err := lock.Acquire(ctx); err != nil {
		return Result{Outcome: Failed}, err
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i].RelPath < missing[j].RelPath })

	var uploaded int
	var bytesUploaded uint64
	lastProgress := time.Now()

	for i, f := range missing {
		localPath := filepath.Join(srcDir, filepath.FromSlash(f.RelPath))
		remotePath := path.Join(dstDir, f.RelPath)

		if err := e.Transport.Put(ctx, localPath, remotePath); err != nil {
			lock.Release(ctx)
			e.Surface.Err(fmt.Sprintf("%s: upload of %s failed: %v", item, f.RelPath, err))
			return Result{Outcome: Failed, FilesUploaded: uploaded, BytesUploaded: bytesUploaded}, &dateferry.IoError{Path: f.RelPath, Err: err}
		}
		uploaded++
		bytesUploaded += f.Size

		isLast := i == len(missing)-1
		if isLast || time.Since(lastProgress) >= e.progressInterval() {
			pct := float64(uploaded) / float64(len(missing)) * 100
			e.Surface.Info(fmt.Sprintf("%s: %.1f%% (%d/%d) uploaded", item, pct, uploaded, len(missing)))
			lastProgress = time.Now()
		}

		if !isLast && e.Surface.Aborted() {
			lock.Release(ctx)
			e.Surface.Info(fmt.Sprintf("%s: aborted after %d/%d files", item, uploaded, len(missing)))
			return Result{Outcome: Aborted, FilesUploaded: uploaded, BytesUploaded: bytesUploaded}, nil
		}
	}

	remoteAfter, err := inventory.ScreenRemote(ctx, e.Transport, dstDir, e.MaxDepth)
	if err != nil {
		lock.Release(ctx)
		return Result{Outcome: Failed, FilesUploaded: uploaded, BytesUploaded: bytesUploaded}, err
	}

	verify := diffengine.Diff(local, remoteAfter)
	if len(verify.MissingRemote) > 0 {
		lock.Release(ctx)
		e.Surface.Err(fmt.Sprintf("%s: verification failed, %d file(s) still missing", item, len(verify.MissingRemote)))
		return Result{Outcome: Failed, FilesUploaded: uploaded, BytesUploaded: bytesUploaded},
			&dateferry.VerificationError{Item: item, Missing: len(verify.MissingRemote)}
	}

	if err := lock.Release(ctx); err != nil {
		return Result{Outcome: Failed, FilesUploaded: uploaded, BytesUploaded: bytesUploaded}, err
	}

	e.Surface.Info(fmt.Sprintf("%s: transfer successful (%d files, %d bytes)", item, uploaded, bytesUploaded))
	return Result{Outcome: Successful, FilesUploaded: uploaded, BytesUploaded: bytesUploaded}, nil
}

// applyRemoval deletes srcDir when RemoveAfterUpload is set and outcome
// qualifies. Remote artifacts are never touched by this policy.
func (e *Engine) applyRemoval(srcDir string, outcome Outcome) {
	if !e.RemoveAfterUpload {
		return
	}
	if outcome != Successful && outcome != NoFilesFound {
		return
	}
	if err := removeAll(srcDir); err != nil {
		e.Surface.Err(fmt.Sprintf("removal of %s failed: %v", srcDir, err))
	}
}

func (e *Engine) applyRemovalFile(srcPath string, outcome Outcome) {
	if !e.RemoveAfterUpload {
		return
	}
	if outcome != Successful && outcome != NoFilesFound {
		return
	}
	if err := removeFile(srcPath); err != nil {
		e.Surface.Err(fmt.Sprintf("removal of %s failed: %v", srcPath, err))
	}
}

func removeAll(srcDir string) error { return os.RemoveAll(srcDir) }
func removeFile(srcPath string) error { return os.Remove(srcPath) }
