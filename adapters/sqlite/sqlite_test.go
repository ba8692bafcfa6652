package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/himawari-bot/himawari/adapters/sqlite"
	"github.com/himawari-bot/himawari/domain/usage"
	"github.com/himawari-bot/himawari/ports"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "himawari-test.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testEvent(interactionID, userID string, input, output int64) usage.Event {
	return usage.NewEvent(userID, interactionID, "talk", "gpt-4o-mini", usage.Totals{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
	}, "")
}

// setTimestamp pins an event's insert-assigned timestamp for window tests.
func setTimestamp(t *testing.T, db *sqlite.DB, interactionID string, ts time.Time) {
	t.Helper()
	_, err := db.Exec("UPDATE token_usage SET timestamp = ? WHERE interaction_id = ?",
		ts.UTC().Format("2006-01-02 15:04:05"), interactionID)
	if err != nil {
		t.Fatalf("set timestamp: %v", err)
	}
}

// -----------------------------------------------------------------------------
// UsageStore Tests
// -----------------------------------------------------------------------------

func TestUsageStore_RecordAndGet(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	e := usage.NewEvent("user-1", "int-1", "chat", "gpt-4o", usage.Totals{
		InputTokens: 100, OutputTokens: 50, TotalTokens: 150,
	}, "msg-1")

	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.GetByInteractionID(ctx, "int-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-1" || got.Command != "chat" || got.Model != "gpt-4o" {
		t.Errorf("identity fields = %+v", got)
	}
	if got.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", got.TotalTokens)
	}
	if got.SourceMessageID != "msg-1" {
		t.Errorf("SourceMessageID = %q, want msg-1", got.SourceMessageID)
	}
	if got.Timestamp.IsZero() {
		t.Error("store should assign a timestamp at insert")
	}
	if got.ID == 0 {
		t.Error("store should assign a row ID")
	}
}

func TestUsageStore_RecordDuplicateInteractionIgnored(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	if err := store.Record(ctx, testEvent("int-1", "user-1", 10, 5)); err != nil {
		t.Fatalf("first record: %v", err)
	}
	// Retry with different token values must neither error nor overwrite.
	if err := store.Record(ctx, testEvent("int-1", "user-1", 999, 999)); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}

	events, err := store.ListRecentByUser(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("stored rows = %d, want 1", len(events))
	}
	if events[0].TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want first insert's 15", events[0].TotalTokens)
	}
}

func TestUsageStore_GetByInteractionID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)

	_, err := store.GetByInteractionID(context.Background(), "missing")
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUsageStore_GetBySourceMessageID_ScopedToUser(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	e := usage.NewEvent("user-1", "int-1", "talk", "gpt-4o-mini",
		usage.Totals{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}, "msg-1")
	if err := store.Record(ctx, e); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.GetBySourceMessageID(ctx, "user-1", "msg-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.InteractionID != "int-1" {
		t.Errorf("InteractionID = %s, want int-1", got.InteractionID)
	}

	if _, err := store.GetBySourceMessageID(ctx, "user-2", "msg-1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("other user's lookup err = %v, want ErrNotFound", err)
	}
}

func TestUsageStore_EmptySourceMessageIDNotUnique(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	// Events without a reply message must not collide on the unique
	// source_message_id column.
	if err := store.Record(ctx, testEvent("int-1", "user-1", 1, 1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, testEvent("int-2", "user-1", 2, 2)); err != nil {
		t.Fatalf("second record without message id: %v", err)
	}
}

func TestUsageStore_ListRecentByUser_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	for i, id := range []string{"int-1", "int-2", "int-3"} {
		if err := store.Record(ctx, testEvent(id, "user-1", int64(i+1), 0)); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	if err := store.Record(ctx, testEvent("int-other", "user-2", 7, 0)); err != nil {
		t.Fatalf("record other user: %v", err)
	}

	events, err := store.ListRecentByUser(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2 (limit applied)", len(events))
	}
	if events[0].InteractionID != "int-3" || events[1].InteractionID != "int-2" {
		t.Errorf("order = [%s %s], want [int-3 int-2]", events[0].InteractionID, events[1].InteractionID)
	}
}

func TestUsageStore_SumTotalTokensSince(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)
	ctx := context.Background()

	boundary := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC) // JST midnight June 2

	for id, ts := range map[string]time.Time{
		"int-before":   boundary.Add(-time.Hour),
		"int-boundary": boundary, // counts toward the new day
		"int-after":    boundary.Add(time.Hour),
	} {
		if err := store.Record(ctx, testEvent(id, "user-1", 10, 0)); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
		setTimestamp(t, db, id, ts)
	}

	sum, err := store.SumTotalTokensSince(ctx, "user-1", boundary)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 20 {
		t.Errorf("sum = %d, want 20 (boundary event included, earlier excluded)", sum)
	}
}

func TestUsageStore_SumTotalTokensSince_NoRows(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewUsageStore(db)

	sum, err := store.SumTotalTokensSince(context.Background(), "nobody", time.Now())
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 0 {
		t.Errorf("sum = %d, want 0", sum)
	}
}
