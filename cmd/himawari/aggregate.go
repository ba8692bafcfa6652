package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/himawari-bot/himawari/adapters/idgen"
	"github.com/himawari-bot/himawari/adapters/sqlite"
	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/domain/budget"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Archive one day's usage totals on demand",
	Long: `Run the daily aggregation for a JST calendar date.

Re-running a date is safe: the archive rows are recomputed from the
ledger and replace the previous ones.

Examples:
  himawari aggregate                      # yesterday (JST)
  himawari aggregate --date 2024-06-01`,
	RunE: runAggregate,
}

var aggregateDate string

func init() {
	rootCmd.AddCommand(aggregateCmd)

	aggregateCmd.Flags().StringVar(&aggregateDate, "date", "", "usage date (YYYY-MM-DD, default: yesterday JST)")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	date := aggregateDate
	if date == "" {
		date = budget.PreviousDate(time.Now())
	}
	if _, _, err := budget.DayWindow(date); err != nil {
		return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", date)
	}

	dbPath, archiveDir, _ := loadConfigLenient()
	db, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	archive := sqlite.NewArchive(db, archiveDir)
	svc := app.NewAggregationService(archive, idgen.UUID{}, zerolog.Nop())

	rows, err := svc.RunForDate(context.Background(), date)
	if err != nil {
		return err
	}

	fmt.Printf("Archived %s: %d user(s) -> %s\n", date, rows, archive.Path(date))
	return nil
}
