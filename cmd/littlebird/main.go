package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/abdulachik/littlebird/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	credentialsPath string
	stateDir        string
)

var rootCmd = &cobra.Command{
	Use:   "littlebird",
	Short: "Forward breaking news and rain reports as direct messages",
	Long: `Little Bird polls a Twitter timeline and a weather service on a schedule
and sends a private direct message whenever either reports something new.`,
	SilenceUsage: true,
}

func init() {
	// Load .env file if present
	_ = godotenv.Load()

	// Set up logging
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	rootCmd.PersistentFlags().StringVar(&credentialsPath, "credentials", "", "Credential file (overrides CREDENTIALS_PATH)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "State directory (overrides STATE_DIR)")
}

// loadConfig reads the environment and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cmd.Flags().Changed("credentials") {
		cfg.CredentialsPath = credentialsPath
	}
	if cmd.Flags().Changed("state-dir") {
		cfg.ApplyStateDir(stateDir)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
