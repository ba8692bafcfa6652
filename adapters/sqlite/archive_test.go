package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/himawari-bot/himawari/adapters/sqlite"
	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/ports"
)

// seedJune1 records two users' events on usage date 2024-06-01, user A
// {100,50} and {10,5}, user B {7,3}, plus one event the following day
// that must stay outside the window.
func seedJune1(t *testing.T, db *sqlite.DB) {
	t.Helper()
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	june1 := time.Date(2024, 6, 1, 10, 0, 0, 0, budget.JST)
	june2 := time.Date(2024, 6, 2, 0, 0, 0, 0, budget.JST)

	seeds := []struct {
		id            string
		user          string
		input, output int64
		ts            time.Time
	}{
		{"int-a1", "user-a", 100, 50, june1},
		{"int-a2", "user-a", 10, 5, june1.Add(2 * time.Hour)},
		{"int-b1", "user-b", 7, 3, june1.Add(5 * time.Hour)},
		{"int-a3", "user-a", 1000, 1000, june2}, // next JST day
	}
	for _, s := range seeds {
		if err := store.Record(ctx, testEvent(s.id, s.user, s.input, s.output)); err != nil {
			t.Fatalf("record %s: %v", s.id, err)
		}
		setTimestamp(t, db, s.id, s.ts)
	}
}

func TestArchive_ArchiveDay(t *testing.T) {
	db := setupTestDB(t)
	seedJune1(t, db)

	archive := sqlite.NewArchive(db, t.TempDir())
	ctx := context.Background()

	rows, err := archive.ArchiveDay(ctx, "2024-06-01")
	if err != nil {
		t.Fatalf("archive day: %v", err)
	}
	if rows != 2 {
		t.Errorf("rows written = %d, want 2", rows)
	}

	totals, err := archive.DailyTotals(ctx, "2024-06-01")
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	want := []ports.DailyTotal{
		{UsageDate: "2024-06-01", UserID: "user-a", InputTokens: 110, OutputTokens: 55, TotalTokens: 165},
		{UsageDate: "2024-06-01", UserID: "user-b", InputTokens: 7, OutputTokens: 3, TotalTokens: 10},
	}
	if len(totals) != len(want) {
		t.Fatalf("len = %d, want %d", len(totals), len(want))
	}
	for i := range want {
		if totals[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, totals[i], want[i])
		}
	}
}

func TestArchive_ArchiveDay_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	seedJune1(t, db)

	archive := sqlite.NewArchive(db, t.TempDir())
	ctx := context.Background()

	first, err := archive.ArchiveDay(ctx, "2024-06-01")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := archive.ArchiveDay(ctx, "2024-06-01")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != second {
		t.Errorf("row counts differ across runs: %d then %d", first, second)
	}

	totals, err := archive.DailyTotals(ctx, "2024-06-01")
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("rows = %d after re-run, want 2 (not doubled)", len(totals))
	}
	if totals[0].TotalTokens != 165 {
		t.Errorf("user-a total = %d after re-run, want 165", totals[0].TotalTokens)
	}
}

func TestArchive_ArchiveDay_EmptyWindow(t *testing.T) {
	db := setupTestDB(t)
	archive := sqlite.NewArchive(db, t.TempDir())

	rows, err := archive.ArchiveDay(context.Background(), "2024-06-01")
	if err != nil {
		t.Fatalf("archive day: %v", err)
	}
	if rows != 0 {
		t.Errorf("rows = %d, want 0 for an empty window", rows)
	}
}

func TestArchive_ArchiveDay_FileNamedFromDate(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	archive := sqlite.NewArchive(db, dir)

	if _, err := archive.ArchiveDay(context.Background(), "2024-06-01"); err != nil {
		t.Fatalf("archive day: %v", err)
	}

	if _, err := os.Stat(archive.Path("2024-06-01")); err != nil {
		t.Errorf("expected archive file 20240601.db: %v", err)
	}
}

func TestArchive_ArchiveDay_RejectsMalformedDate(t *testing.T) {
	db := setupTestDB(t)
	archive := sqlite.NewArchive(db, t.TempDir())

	if _, err := archive.ArchiveDay(context.Background(), "junk'; --"); err == nil {
		t.Error("expected error for malformed usage date")
	}
}

func TestArchive_DailyTotals_MissingDate(t *testing.T) {
	db := setupTestDB(t)
	archive := sqlite.NewArchive(db, t.TempDir())

	_, err := archive.DailyTotals(context.Background(), "1999-01-01")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestArchive_ArchiveDay_DetachAllowsReattach(t *testing.T) {
	db := setupTestDB(t)
	seedJune1(t, db)

	archive := sqlite.NewArchive(db, t.TempDir())
	ctx := context.Background()

	// Back-to-back runs for different dates reuse pooled connections;
	// they only succeed if each run detached cleanly.
	for _, date := range []string{"2024-06-01", "2024-06-02", "2024-06-01"} {
		if _, err := archive.ArchiveDay(ctx, date); err != nil {
			t.Fatalf("archive %s: %v", date, err)
		}
	}
}
