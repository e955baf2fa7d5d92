// Command dateferry-agent runs dateferry as a long-lived daemon: a cron
// schedule drives periodic upload sessions, optionally supplemented by an
// fsnotify watch that triggers an opportunistic run as soon as a new
// top-level item appears. A single-slot job channel serializes the two
// triggers so at most one UploadSession.Run is ever in flight, the same
// way rrr-server serializes its watcher and periodic aggregation against
// one Recent collection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/metricsserver"
	"go.ntppool.org/common/version"

	"github.com/abh/dateferry/config"
	"github.com/abh/dateferry/session"
	"github.com/abh/dateferry/transport"
	"github.com/abh/dateferry/watch"
)

// CLI defines the command-line interface for dateferry-agent.
type CLI struct {
	ConfigFile string `arg:"" help:"Path to the dateferry YAML configuration file." type:"path"`

	LogLevel string `default:"info" help:"Log level (debug, info, warn, error)."`
	Verbose  bool   `short:"v" help:"Enable verbose logging."`

	Version kong.VersionFlag `short:"V" help:"Show version."`
}

// metrics holds the Prometheus metrics collectors the agent registers.
type metrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	itemsSucceeded prometheus.Counter
	itemsFailed    prometheus.Counter
	bytesUploaded  prometheus.Counter
}

// agent holds the daemon's running state.
type agent struct {
	cfg     *config.Config
	t       transport.Transport
	log     *slog.Logger
	metrics *metrics

	runRequests chan string // carries the trigger source, for logging
}

func main() {
	var cli CLI

	kctx := kong.Parse(&cli,
		kong.Name("dateferry-agent"),
		kong.Description("Run dateferry as a scheduled daemon"),
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

	log.Info("starting dateferry-agent",
		"version", version.Version(),
		"source_root", cfg.SourceRoot,
		"dest_root", cfg.DestRoot,
		"schedule", cfg.Schedule,
		"watch_enabled", cfg.WatchEnabled,
		"metrics_port", cfg.MetricsPort,
	)

	t, err := transport.Dial(cfg.SSHTransportConfig())
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}
	defer t.Close()

	metricsSrv := metricsserver.New()

	m := &metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "dateferry_runs_total", Help: "Total number of upload sessions run"},
			[]string{"trigger"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "dateferry_run_duration_seconds", Help: "Duration of an upload session run",
			Buckets: prometheus.DefBuckets,
		}),
		itemsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dateferry_items_succeeded_total", Help: "Total number of items uploaded successfully",
		}),
		itemsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dateferry_items_failed_total", Help: "Total number of items that failed to upload",
		}),
		bytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dateferry_bytes_uploaded_total", Help: "Total bytes uploaded",
		}),
	}
	metricsSrv.Registry().MustRegister(m.runsTotal, m.runDuration, m.itemsSucceeded, m.itemsFailed, m.bytesUploaded)

	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(ctx, cfg.MetricsPort); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	a := &agent{cfg: cfg, t: t, log: log, metrics: m, runRequests: make(chan string, 1)}

	go a.worker(ctx)

	var c *cron.Cron
	if cfg.Schedule != "" {
		c = cron.New()
		if _, err := c.AddFunc(cfg.Schedule, func() { a.requestRun("cron") }); err != nil {
			return fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
		}
		c.Start()
		defer c.Stop()
		log.Info("cron schedule active", "schedule", cfg.Schedule)
	}

	var w *watch.Watcher
	if cfg.WatchEnabled {
		w, err = watch.New(cfg.SourceRoot, func() { a.requestRun("watch") })
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		log.Info("filesystem watch active", "root", cfg.SourceRoot)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", "signal", sig.String())

	if w != nil {
		if err := w.Stop(); err != nil {
			log.Error("stop watcher", "error", err)
		}
	}

	return nil
}

// requestRun enqueues a run request, dropping it if one is already
// pending — the single-slot channel is what keeps the cron trigger and
// the watch trigger from ever overlapping a session.
func (a *agent) requestRun(trigger string) {
	select {
	case a.runRequests <- trigger:
	default:
		a.log.Debug("run already pending, dropping trigger", "trigger", trigger)
	}
}

func (a *agent) worker(ctx context.Context) {
	for {
		select {
		case trigger, ok := <-a.runRequests:
			if !ok {
				return
			}
			a.runOnce(ctx, trigger)
		case <-ctx.Done():
			return
		}
	}
}

func (a *agent) runOnce(ctx context.Context, trigger string) {
	surface := a.cfg.CallbackSurface(a.log, nil)

	sess, err := session.New(a.cfg, a.t, surface)
	if err != nil {
		a.log.Error("build session", "error", err)
		return
	}

	a.log.Info("run starting", "trigger", trigger)
	stats, err := sess.Run(ctx)
	a.metrics.runsTotal.WithLabelValues(trigger).Inc()
	a.metrics.runDuration.Observe(stats.Duration.Seconds())
	a.metrics.itemsSucceeded.Add(float64(stats.ItemsSucceeded))
	a.metrics.itemsFailed.Add(float64(stats.ItemsFailed))
	a.metrics.bytesUploaded.Add(float64(stats.BytesUploaded))

	if err != nil {
		a.log.Error("run failed", "trigger", trigger, "error", err)
		return
	}
	a.log.Info("run complete",
		"trigger", trigger,
		"items_succeeded", stats.ItemsSucceeded,
		"items_failed", stats.ItemsFailed,
		"items_aborted", stats.ItemsAborted,
		"items_empty", stats.ItemsEmpty,
		"files_uploaded", stats.FilesUploaded,
		"bytes_uploaded", stats.BytesUploaded,
		"duration", stats.Duration,
	)
}
