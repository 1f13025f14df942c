// Package main provides the entry point for the hiring board service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "hiring_board",
	Short: "Hiring board live sync service",
	Long: "hiring_board keeps each recruiter's jobs and incoming applications in sync with Postgres " +
		"and serves the candidate dashboard over HTTP and server-sent events.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and requires a database URL
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

func boardOptions(cfg *config.Config) board.Options {
	return board.Options{
		JobLimit:        cfg.JobSnapshotLimit,
		CacheSize:       cfg.EnrichCacheSize,
		InitialInterval: cfg.ResubscribeInitial.Std(),
		MaxInterval:     cfg.ResubscribeMax.Std(),
	}
}
