package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/himawari-bot/himawari/adapters/clock"
	"github.com/himawari-bot/himawari/adapters/sqlite"
	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/ports"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the usage ledger",
	Long: `Inspect a user's token usage.

Examples:
  himawari usage recent --user 123456789 --limit 20
  himawari usage remaining --user 123456789
  himawari usage day --date 2024-06-01`,
}

var usageRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show a user's recent ledger rows",
	RunE:  runUsageRecent,
}

var usageRemainingCmd = &cobra.Command{
	Use:   "remaining",
	Short: "Show a user's remaining daily budget",
	RunE:  runUsageRemaining,
}

var usageDayCmd = &cobra.Command{
	Use:   "day",
	Short: "Show archived totals for a finished day",
	RunE:  runUsageDay,
}

var (
	usageUserID string
	usageLimit  int
	usageDate   string
)

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageRecentCmd)
	usageCmd.AddCommand(usageRemainingCmd)
	usageCmd.AddCommand(usageDayCmd)

	usageRecentCmd.Flags().StringVar(&usageUserID, "user", "", "Discord user ID")
	usageRecentCmd.Flags().IntVar(&usageLimit, "limit", 20, "number of rows to show")

	usageRemainingCmd.Flags().StringVar(&usageUserID, "user", "", "Discord user ID")

	usageDayCmd.Flags().StringVar(&usageDate, "date", "", "usage date (YYYY-MM-DD)")
}

func requireUser() error {
	if usageUserID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func runUsageRecent(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}

	dbPath, _, _ := loadConfigLenient()
	db, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqlite.NewUsageStore(db)
	events, err := store.ListRecentByUser(context.Background(), usageUserID, usageLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tCOMMAND\tMODEL\tINPUT\tOUTPUT\tTOTAL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			e.Timestamp.In(budget.JST).Format("2006-01-02 15:04:05"),
			e.Command, e.Model, e.InputTokens, e.OutputTokens, e.TotalTokens)
	}
	return w.Flush()
}

func runUsageRemaining(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}

	dbPath, _, dailyLimit := loadConfigLenient()
	db, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := app.NewUsageService(sqlite.NewUsageStore(db), clock.Real{}, zerolog.Nop())
	remaining, err := svc.RemainingDailyTokens(context.Background(), usageUserID, dailyLimit)
	if err != nil {
		return err
	}

	fmt.Printf("User %s: %d / %d tokens remaining today (JST)\n", usageUserID, remaining, dailyLimit)
	return nil
}

func runUsageDay(cmd *cobra.Command, args []string) error {
	date := usageDate
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
	totals, err := archive.DailyTotals(context.Background(), date)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("no archive for %s; run 'himawari aggregate --date %s' first", date, date)
		}
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tINPUT\tOUTPUT\tTOTAL")
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t.UserID, t.InputTokens, t.OutputTokens, t.TotalTokens)
	}
	return w.Flush()
}
