package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/himawari-bot/himawari/config"
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the himawari configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Database directory is writable (optional)

Examples:
  himawari validate
  himawari validate --config /etc/himawari/config.yaml`,
	RunE: runValidate,
}

var validateCheckDatabase bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the database directory is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	if validateCheckDatabase {
		dir := filepath.Dir(cfg.Database.Path)
		probe := filepath.Join(dir, ".himawari-probe")
		if err := os.WriteFile(probe, nil, 0644); err != nil {
			fmt.Printf("  %s Database directory writable\n", crossMark)
			return fmt.Errorf("database directory not writable: %w", err)
		}
		os.Remove(probe)
		fmt.Printf("  %s Database directory writable\n", checkMark)
	}

	fmt.Println()
	fmt.Printf("  Daily token limit: %d\n", cfg.Budget.DailyTokenLimit)
	fmt.Printf("  Database:          %s\n", cfg.Database.Path)
	fmt.Printf("  Archive dir:       %s\n", cfg.Archive.Dir)
	fmt.Printf("  Admin:             %s:%d\n", cfg.Admin.Host, cfg.Admin.Port)
	return nil
}
