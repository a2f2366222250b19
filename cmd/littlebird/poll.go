package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdulachik/littlebird/internal/app"
	"github.com/abdulachik/littlebird/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	pollDryRun bool
	pollSource string
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one cycle per source and exit",
	Long: `Poll every source once, notify on new content, and record state.

Examples:
  littlebird poll                    # Poll all sources
  littlebird poll --source weather   # Poll one source
  littlebird poll --dry-run          # Log notifications instead of sending`,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().BoolVar(&pollDryRun, "dry-run", false, "Log notifications instead of sending them")
	pollCmd.Flags().StringVar(&pollSource, "source", "", "Poll only this source (news or weather)")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateForServe(pollDryRun); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(ctx, cfg, app.Options{DryRun: pollDryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	tasks := a.Tasks
	if pollSource != "" {
		task := a.Task(pollSource)
		if task == nil {
			return fmt.Errorf("unknown source %q", pollSource)
		}
		tasks = []*scheduler.Task{task}
	}

	return pollTasks(ctx, os.Stdout, tasks)
}

// pollTasks runs one cycle per task and prints each outcome. It stops at the
// first task that sees ctx cancelled.
func pollTasks(ctx context.Context, out io.Writer, tasks []*scheduler.Task) error {
	var failed int
	for _, task := range tasks {
		outcome, err := task.RunCycle(ctx)
		if errors.Is(err, context.Canceled) {
			slog.Info("poll interrupted", "source", task.Key())
			return err
		}
		if err != nil {
			failed++
			slog.Error("cycle failed", "source", task.Key(), "error", err)
			fmt.Fprintf(out, "%-8s failed: %v\n", task.Key(), err)
			continue
		}
		fmt.Fprintf(out, "%-8s %s\n", task.Key(), outcome)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(tasks))
	}
	return nil
}
