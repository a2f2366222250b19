package main

import (
	"context"
	"fmt"

	"github.com/abdulachik/littlebird/internal/app"
	"github.com/abdulachik/littlebird/internal/config"
	"github.com/abdulachik/littlebird/internal/db"
	"github.com/abdulachik/littlebird/internal/state"
	"github.com/spf13/cobra"
)

var statsRecent int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored state and delivery statistics",
	Long:  `Display the last value remembered for each source and, for the sqlite backend, the delivery log.`,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsRecent, "recent", 5, "Number of recent deliveries to show per source")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	fmt.Println("=== Little Bird Statistics ===")
	fmt.Println()

	switch cfg.StateBackend {
	case config.BackendMemory:
		fmt.Println("The memory backend keeps no state between runs.")
		return nil

	case config.BackendFile:
		store, err := state.NewFileStore(cfg.StateDir)
		if err != nil {
			return err
		}
		fmt.Printf("State directory: %s\n", cfg.StateDir)
		fmt.Println()
		return printLastValues(ctx, store)
	}

	store, err := db.NewStore(ctx, db.Config{
		Path:        cfg.DatabasePath,
		BusyTimeout: cfg.DBBusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	// Ensure migrations are run
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	fmt.Printf("Database: %s\n", cfg.DatabasePath)
	fmt.Println()

	if err := printLastValues(ctx, state.NewSQLiteStore(store)); err != nil {
		return err
	}

	counts, err := store.CountDeliveriesBySource(ctx)
	if err != nil {
		return fmt.Errorf("count deliveries: %w", err)
	}

	fmt.Println("Deliveries:")
	if len(counts) == 0 {
		fmt.Println("  none yet")
	}
	for _, row := range counts {
		fmt.Printf("  %s: %d sent, %d failed\n", row.SourceKey, row.Delivered, row.Total-row.Delivered)
	}
	fmt.Println()

	if statsRecent <= 0 {
		return nil
	}

	for _, key := range []string{app.SourceNews, app.SourceWeather} {
		recent, err := store.ListRecentDeliveries(ctx, db.ListRecentDeliveriesParams{
			SourceKey: key,
			Limit:     int64(statsRecent),
		})
		if err != nil {
			return fmt.Errorf("list deliveries: %w", err)
		}
		if len(recent) == 0 {
			continue
		}
		fmt.Printf("Recent %s:\n", key)
		for _, d := range recent {
			status := "sent"
			if !d.Delivered {
				status = "failed: " + d.Error.String
			}
			fmt.Printf("  %s  %s (%s)\n", d.CreatedAt.Format("2006-01-02 15:04"), d.Message, status)
		}
		fmt.Println()
	}

	return nil
}

func printLastValues(ctx context.Context, store state.Store) error {
	fmt.Println("Last seen:")
	for _, key := range []string{app.SourceNews, app.SourceWeather} {
		value, found, err := store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s state: %w", key, err)
		}
		if !found {
			value = "(nothing yet)"
		}
		fmt.Printf("  %-8s %s\n", key, value)
	}
	fmt.Println()
	return nil
}
