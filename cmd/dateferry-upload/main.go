// Command dateferry-upload runs a single upload session against a
// configured source/destination pair and exits. It is the one-shot
// counterpart to dateferry-agent, the way rrr-fsck is the one-shot
// counterpart to rrr-server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/version"

	"github.com/abh/dateferry/config"
	"github.com/abh/dateferry/session"
	"github.com/abh/dateferry/transport"
)

// CLI defines the command-line interface for dateferry-upload.
type CLI struct {
	ConfigFile string `arg:"" help:"Path to the dateferry YAML configuration file." type:"path"`

	LogLevel string `default:"info" help:"Log level (debug, info, warn, error)."`
	Verbose  bool   `short:"v" help:"Enable verbose logging."`

	Version kong.VersionFlag `short:"V" help:"Show version."`
}

func main() {
	var cli CLI

	kctx := kong.Parse(&cli,
		kong.Name("dateferry-upload"),
		kong.Description("Run a single dateferry upload session"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version()},
	)

	if cli.Verbose {
		os.Setenv("LOG_LEVEL", "DEBUG")
	} else if cli.LogLevel != "" {
		os.Setenv("LOG_LEVEL", cli.LogLevel)
	}

	log := logger.Setup()

	if err := run(context.Background(), &cli, log); err != nil {
		log.Error("fatal error", "error", err)
		kctx.Exit(1)
	}
}

func run(ctx context.Context, cli *CLI, log *slog.Logger) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	t, err := transport.Dial(cfg.SSHTransportConfig())
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}
	defer t.Close()

	surface := cfg.CallbackSurface(log, nil)

	sess, err := session.New(cfg, t, surface)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	log.Info("starting upload session",
		"version", version.Version(),
		"source_root", cfg.SourceRoot,
		"dest_root", cfg.DestRoot,
		"kind", cfg.Kind,
	)

	stats, err := sess.Run(ctx)
	log.Info("upload session complete",
		"items_seen", stats.ItemsSeen,
		"items_succeeded", stats.ItemsSucceeded,
		"items_failed", stats.ItemsFailed,
		"items_aborted", stats.ItemsAborted,
		"items_empty", stats.ItemsEmpty,
		"files_uploaded", stats.FilesUploaded,
		"bytes_uploaded", stats.BytesUploaded,
		"duration", stats.Duration,
	)
	if err != nil {
		return fmt.Errorf("run session: %w", err)
	}
	if stats.ItemsFailed > 0 {
		return fmt.Errorf("%d item(s) failed", stats.ItemsFailed)
	}
	return nil
}
