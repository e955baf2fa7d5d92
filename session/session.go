// Package session drives a single top-to-bottom upload run: pre-run lock
// check, item discovery, per-item dispatch to the transfer engine, and
// run-level statistics. It is the spec's UploadSession, playing the role
// abh/rrrgo's server loop plays around recentfile aggregation, but for
// one finite run rather than an indefinitely running watcher.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/abh/dateferry"
	"github.com/abh/dateferry/callback"
	"github.com/abh/dateferry/config"
	"github.com/abh/dateferry/dateparser"
	"github.com/abh/dateferry/itemlister"
	"github.com/abh/dateferry/transfer"
	"github.com/abh/dateferry/transport"
	"github.com/abh/dateferry/twinlock"
)

// Session binds a validated configuration to a transport and drives one
// Run.
type Session struct {
	cfg     *config.Config
	spec    *dateparser.DateSpec
	surface *callback.Surface
	engine  *transfer.Engine
}

// New builds a Session from cfg and t. cfg must have already passed
// config.Config.Validate (Load does this automatically); New compiles the
// dated_regex again here since DateSpec has no exported validity check
// short of construction.
func New(cfg *config.Config, t transport.Transport, surface *callback.Surface) (*Session, error) {
	spec, err := dateparser.NewDateSpec(cfg.DatedRegex)
	if err != nil {
		return nil, &dateferry.ConfigError{Violations: []string{err.Error()}}
	}

	engine := transfer.New(t, surface, cfg.RemoveAfterUpload, cfg.MaxDepth)
	return &Session{cfg: cfg, spec: spec, surface: surface, engine: engine}, nil
}

// Run executes one full pass: pre-run lock check, item discovery, then
// per-item dispatch in ascending name order, honoring cooperative abort
// between items. It returns whatever work completed even when it returns
// a non-nil error, so a caller can still log partial RunStats.
func (s *Session) Run(ctx context.Context) (dateferry.RunStats, error) {
	start := time.Now()
	stats := dateferry.RunStats{}

	if err := twinlock.PreRunCheck(s.cfg.SourceRoot); err != nil {
		return stats, err
	}

	items, err := itemlister.List(s.cfg.SourceRoot, s.cfg.ItemKind(), s.spec, start)
	if err != nil {
		return stats, err
	}

	s.surface.Info(fmt.Sprintf("discovered %d item(s): %v", len(items), items))

	for i, item := range items {
		if i > 0 && s.surface.Aborted() {
			s.surface.Info("abort requested, stopping before next item")
			break
		}

		stats.ItemsSeen++

		var result transfer.Result
		var procErr error
		switch s.cfg.ItemKind() {
		case dateferry.KindDirectories:
			result, procErr = s.engine.ProcessItem(ctx, s.cfg.SourceRoot, s.cfg.DestRoot, item)
		case dateferry.KindFiles:
			result, procErr = s.engine.ProcessFileItem(ctx, s.cfg.SourceRoot, s.cfg.DestRoot, item)
		}

		stats.FilesUploaded += result.FilesUploaded
		stats.BytesUploaded += result.BytesUploaded

		if procErr != nil {
			stats.ItemsFailed++
			s.surface.Err(fmt.Sprintf("%s: %v", item, procErr))
			continue
		}

		switch result.Outcome {
		case transfer.Successful:
			stats.ItemsSucceeded++
		case transfer.Failed:
			stats.ItemsFailed++
		case transfer.Aborted:
			stats.ItemsAborted++
			s.surface.Info("item aborted, stopping iteration")
			stats.Duration = time.Since(start)
			return stats, nil
		case transfer.NoFilesFound:
			stats.ItemsEmpty++
		}

		s.surface.Info(fmt.Sprintf("%s: %s", item, result.Outcome))
	}

	stats.Duration = time.Since(start)
	return stats, nil
}
