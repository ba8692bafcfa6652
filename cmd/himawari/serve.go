package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/himawari-bot/himawari/bootstrap"
	"github.com/himawari-bot/himawari/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and start the bot",
	Long: `Start the himawari bot.

The bot will:
  - Load configuration from himawari.yaml (or --config)
  - Or load configuration from HIMAWARI_* environment variables
  - Open the usage ledger database and apply migrations
  - Register slash commands and connect to the Discord gateway
  - Arm the daily aggregation at the next JST midnight
  - Serve the admin API and Prometheus metrics

Environment variables (for Docker deployments):
  HIMAWARI_DISCORD_TOKEN     - Discord bot token (required)
  HIMAWARI_OPENAI_API_KEY    - OpenAI API key (required)
  HIMAWARI_DAILY_TOKEN_LIMIT - Per-user daily token budget (default: 10000)
  HIMAWARI_DATABASE_PATH     - Ledger database path (default: himawari.db)
  HIMAWARI_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  himawari serve
  himawari serve --config /etc/himawari/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !hasConfigFile {
		fmt.Println("Running with environment variables (no config file)")
	}

	bootstrap.Version = version
	app, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
