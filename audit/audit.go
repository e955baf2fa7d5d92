// Package audit reports on the sync state of every discoverable item
// without uploading anything, and can optionally repair what it finds by
// delegating to the transfer engine. It plays the role abh/rrrgo/fsck
// plays for a Recent collection, adapted from checking hierarchy/event
// consistency to checking local/remote inventory agreement per item.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/callback"
	"github.com/abh/dateferry/config"
	"github.com/abh/dateferry/dateparser"
	"github.com/abh/dateferry/diffengine"
	"github.com/abh/dateferry/inventory"
	"github.com/abh/dateferry/itemlister"
	"github.com/abh/dateferry/shellquote"
	"github.com/abh/dateferry/transfer"
	"github.com/abh/dateferry/transport"
)

// Options controls an audit run.
type Options struct {
	Repair  bool         // Delegate out-of-sync items to the transfer engine.
	Verbose bool         // Emit a debug line per item, not just a summary.
	Logger  *slog.Logger // Required for all output.
}

// Result reports what an audit found.
type Result struct {
	ItemsChecked int
	ItemsInSync  int
	ItemsMissing int            // items with at least one file missing remotely
	MissingFiles map[string]int // item -> count of files missing remotely
	Repaired     bool
}

// Run lists every item discoverable from cfg, diffs each against the
// remote side without uploading, and reports the aggregate. When
// opts.Repair is set, items found out of sync are handed to a
// transfer.Engine built with the same configuration.
func Run(ctx context.Context, cfg *config.Config, t transport.Transport, opts Options) (*Result, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("audit: logger is required")
	}

	spec, err := dateparser.NewDateSpec(cfg.DatedRegex)
	if err != nil {
		return nil, fmt.Errorf("audit: compile dated_regex: %w", err)
	}

	items, err := itemlister.List(cfg.SourceRoot, cfg.ItemKind(), spec, time.Now())
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("starting audit", "items", len(items), "repair", opts.Repair)

	result := &Result{MissingFiles: make(map[string]int)}
	var toRepair []string

	for _, item := range items {
		result.ItemsChecked++

		local, remote, err := screenItem(ctx, cfg, t, item)
		if err != nil {
			opts.Logger.Error("audit: screen failed", "item", item, "error", err)
			continue
		}

		diffResult := diffengine.Diff(local, remote)
		if len(diffResult.MissingRemote) == 0 {
			result.ItemsInSync++
			if opts.Verbose {
				opts.Logger.Debug("item in sync", "item", item, "files", len(diffResult.InSync))
			}
			continue
		}

		result.ItemsMissing++
		result.MissingFiles[item] = len(diffResult.MissingRemote)
		opts.Logger.Info("item out of sync", "item", item, "missing", len(diffResult.MissingRemote))
		toRepair = append(toRepair, item)
	}

	opts.Logger.Info("audit checks complete",
		"items_checked", result.ItemsChecked,
		"items_in_sync", result.ItemsInSync,
		"items_missing", result.ItemsMissing,
	)

	if opts.Repair && len(toRepair) > 0 {
		opts.Logger.Info("repairing out-of-sync items", "count", len(toRepair))
		surface := callback.FromLogger(opts.Logger, cfg.DatedRegex, nil)
		engine := transfer.New(t, surface, cfg.RemoveAfterUpload, cfg.MaxDepth)

		for _, item := range toRepair {
			var repairErr error
			if cfg.ItemKind().String() == "files" {
				_, repairErr = engine.ProcessFileItem(ctx, cfg.SourceRoot, cfg.DestRoot, item)
			} else {
				_, repairErr = engine.ProcessItem(ctx, cfg.SourceRoot, cfg.DestRoot, item)
			}
			if repairErr != nil {
				opts.Logger.Error("repair failed", "item", item, "error", repairErr)
			}
		}
		result.Repaired = true
		opts.Logger.Info("repair complete")
	}

	return result, nil
}

func screenItem(ctx context.Context, cfg *config.Config, t transport.Transport, item string) (*inventory.Directory, *inventory.Directory, error) {
	if cfg.ItemKind().String() == "files" {
		local, err := inventory.ScreenLocal(cfg.SourceRoot, 1)
		if err != nil {
			return nil, nil, err
		}
		remoteFull, err := inventory.ScreenRemote(ctx, t, cfg.DestRoot, 1)
		if err != nil {
			return nil, nil, err
		}
		return local.Filter(item), remoteFull.Filter(item), nil
	}

	srcDir := filepath.Join(cfg.SourceRoot, item)
	dstDir := path.Join(cfg.DestRoot, item)
	local, err := inventory.ScreenLocal(srcDir, cfg.MaxDepth)
	if err != nil {
		return nil, nil, err
	}
	// An item with no remote directory yet has every local file missing.
	_, _, exitCode, err := t.Run(ctx, "test -d "+shellquote.Quote(dstDir))
	if err != nil {
		return nil, nil, &dateferry.TransportError{Err: err}
	}
	if exitCode != 0 {
		return local, &inventory.Directory{}, nil
	}
	remote, err := inventory.ScreenRemote(ctx, t, dstDir, cfg.MaxDepth)
	if err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}
