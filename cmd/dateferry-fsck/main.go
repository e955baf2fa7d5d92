// Command dateferry-fsck reports (and optionally repairs) the sync state
// of every discoverable item against the remote endpoint, without
// running a full upload session. It mirrors rrr-fsck's one-shot
// integrity-check shape, retargeted at inventory agreement instead of
// RECENT index consistency.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"go.ntppool.org/common/version"

	"github.com/abh/dateferry/audit"
	"github.com/abh/dateferry/config"
	"github.com/abh/dateferry/transport"
)

// CLI defines the command-line interface for dateferry-fsck.
type CLI struct {
	ConfigFile string `arg:"" help:"Path to the dateferry YAML configuration file." type:"path"`

	Repair  bool `short:"r" help:"Upload files found missing remotely (otherwise just report)."`
	Verbose bool `short:"v" help:"Enable verbose logging."`

	Version kong.VersionFlag `short:"V" help:"Show version."`
}

func main() {
	var cli CLI

	kctx := kong.Parse(&cli,
		kong.Name("dateferry-fsck"),
		kong.Description("Check (and optionally repair) remote sync state"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version()},
	)

	if err := run(context.Background(), &cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		kctx.Exit(1)
	}
}

func run(ctx context.Context, cli *CLI) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	t, err := transport.Dial(cfg.SSHTransportConfig())
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}
	defer t.Close()

	result, err := audit.Run(ctx, cfg, t, audit.Options{
		Repair:  cli.Repair,
		Verbose: cli.Verbose,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	fmt.Println("\n=== Summary ===")
	fmt.Printf("Items checked: %d\n", result.ItemsChecked)
	fmt.Printf("In sync:       %d\n", result.ItemsInSync)
	fmt.Printf("Out of sync:   %d\n", result.ItemsMissing)

	if result.ItemsMissing > 0 {
		fmt.Println("\nOut-of-sync items:")
		for item, missing := range result.MissingFiles {
			fmt.Printf("  %s: %d file(s) missing remotely\n", item, missing)
		}

		if cli.Repair {
			if !result.Repaired {
				return fmt.Errorf("repair was requested but not completed")
			}
			fmt.Println("\n✓ Repair complete")
		} else {
			fmt.Println("\nRun again with --repair to upload the missing files.")
			return fmt.Errorf("found %d out-of-sync item(s)", result.ItemsMissing)
		}
	} else {
		fmt.Println("\n✓ No issues found")
	}

	return nil
}
