package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/himawari-bot/himawari/adapters/sqlite"
	"github.com/himawari-bot/himawari/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "himawari",
	Short: "Discord chat bot with per-user daily token budgets",
	Long: `Himawari is a Discord bot backed by an LLM provider. Every model
call is metered into a usage ledger, each user gets a daily token
budget counted from JST midnight, and finished days are archived into
per-date summary stores.

Quick start:
  himawari serve            # Connect to Discord and start the bot

Operations:
  himawari aggregate        # Archive a finished day on demand
  himawari usage            # Inspect a user's ledger
  himawari validate         # Validate configuration`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Secrets commonly live in .env during development. Absence is
		// not an error.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "himawari.yaml", "config file path")
}

// loadConfigLenient loads the config for operator subcommands that only
// touch the database. Validation failures (such as a missing bot token)
// fall back to defaults so the CLI works on a bare data directory.
func loadConfigLenient() (dbPath, archiveDir string, dailyLimit int64) {
	dbPath = "himawari.db"
	archiveDir = "archive"
	dailyLimit = 10000

	if v := os.Getenv("HIMAWARI_DATABASE_PATH"); v != "" {
		dbPath = v
	}
	if v := os.Getenv("HIMAWARI_ARCHIVE_DIR"); v != "" {
		archiveDir = v
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return dbPath, archiveDir, dailyLimit
	}
	return cfg.Database.Path, cfg.Archive.Dir, cfg.Budget.DailyTokenLimit
}

func openDatabase(path string) (*sqlite.DB, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
