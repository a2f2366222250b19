package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdulachik/littlebird/internal/app"
	"github.com/abdulachik/littlebird/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveDryRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the notifier daemon",
	Long: `Run the Little Bird daemon. Every source is polled on its own interval;
new content is sent as a direct message and remembered across restarts.

Examples:
  littlebird serve                      # Send direct messages
  littlebird serve --dry-run            # Log notifications instead of sending
  littlebird serve --state-dir /var/lib/littlebird`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Log notifications instead of sending them")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateForServe(serveDryRun); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(ctx, cfg, app.Options{DryRun: serveDryRun})
	if err != nil {
		return err
	}
	// Closed explicitly below, unless a cycle may still be writing to it.
	closeApp := true
	defer func() {
		if closeApp {
			a.Close()
		}
	}()

	sched, err := scheduler.New(scheduler.Config{
		Tasks:               a.Tasks,
		SupervisionInterval: cfg.SupervisionInterval,
		ShutdownTimeout:     cfg.ShutdownTimeout,
		Metrics:             a.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	slog.Info("starting Little Bird daemon",
		"timeline", cfg.TimelineAccount,
		"timeline_interval", cfg.TimelineInterval,
		"weather", cfg.WeatherLocation,
		"weather_interval", cfg.WeatherInterval,
		"dry_run", serveDryRun,
	)

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics.Handler())
		mux.Handle("/healthz", sched.Health())
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	// Run scheduler in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Run(ctx)
	}()

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
		slog.Info("shutting down...")
		cancel()
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if errors.Is(runErr, scheduler.ErrShutdownTimeout) {
		slog.Warn("leaving state store open for running cycles")
		closeApp = false
	} else if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("scheduler error: %w", runErr)
	}

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}

	return nil
}
