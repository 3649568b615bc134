package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jamesainslie/filer/pkg/filer/logging"
	"github.com/jamesainslie/filer/pkg/filer/metrics"
	"github.com/jamesainslie/filer/pkg/filer/schedule"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run processing cycles on a schedule",
	Long: `Run processing cycles until interrupted.

Cycles start on the run.schedule cron expression and, with --watch, shortly
after files are created or written under scan.root. Only one cycle runs at a
time; a trigger that arrives during a cycle is dropped.

When run.metrics_addr is set, Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runWatch    bool
	runSchedule string
	runNow      bool
	runMetrics  string
)

func init() {
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "also run a cycle when files change under the scan root")
	runCmd.Flags().StringVar(&runSchedule, "schedule", "", "cron expression (overrides run.schedule)")
	runCmd.Flags().BoolVar(&runNow, "now", false, "run one cycle immediately on start")
	runCmd.Flags().StringVar(&runMetrics, "metrics-addr", "", "serve metrics on this address (overrides run.metrics_addr)")
	rootCmd.AddCommand(runCmd)
}

// metricsShutdownTimeout bounds how long the metrics server drains on exit.
const metricsShutdownTimeout = 5 * time.Second

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("watch") {
		cfg.Run.Watch = runWatch
	}
	if runSchedule != "" {
		cfg.Run.Schedule = runSchedule
	}
	if runMetrics != "" {
		cfg.Run.MetricsAddr = runMetrics
	}

	a, err := openApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logs.Get("runner")

	p, err := a.processor()
	if err != nil {
		return err
	}

	root, err := filepath.Abs(cfg.Scan.Root)
	if err != nil {
		return fmt.Errorf("resolving scan root: %w", err)
	}

	sc, err := a.scanner()
	if err != nil {
		return err
	}

	runner, err := schedule.New(p, schedule.Options{
		Schedule:   cfg.Run.Schedule,
		Watch:      cfg.Run.Watch,
		Root:       root,
		Debounce:   cfg.Run.Debounce,
		RunOnStart: runNow,
		Filter:     sc.Candidate,
		Ignore:     a.watchIgnore(),
	}, logger)
	if err != nil {
		return err
	}

	if h, err := a.history(); err == nil && h != nil {
		if removed, err := h.Cleanup(cfg.History.RetentionDays); err != nil {
			logger.Warn("history cleanup failed", "error", err)
		} else if removed > 0 {
			logger.Info("history cleaned", "removed", removed)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Run.MetricsAddr != "" {
		srv := serveMetrics(cfg.Run.MetricsAddr, a.metrics, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("filer started",
		"root", root,
		"schedule", cfg.Run.Schedule,
		"watch", cfg.Run.Watch,
		"ledger", cfg.Ledger.Path,
	)
	printInfo("filer running (schedule %q, watch %t). Press Ctrl+C to stop.", cfg.Run.Schedule, cfg.Run.Watch)

	if err := runner.Run(ctx); err != nil {
		return err
	}
	logger.Info("filer stopped")
	return nil
}

// serveMetrics starts the metrics endpoint in the background.
func serveMetrics(addr string, m *metrics.Metrics, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
