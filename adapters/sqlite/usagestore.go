package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/himawari-bot/himawari/domain/usage"
	"github.com/himawari-bot/himawari/ports"
)

// timeLayout is the CURRENT_TIMESTAMP text form SQLite writes (UTC).
const timeLayout = "2006-01-02 15:04:05"

// defaultRecentLimit bounds ListRecentByUser when no limit is given.
const defaultRecentLimit = 20

// UsageStore implements ports.UsageStore using SQLite.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Record inserts a usage event. The timestamp is assigned by SQLite at
// insert time; a row with the same interaction_id already present makes
// the insert a no-op rather than an error, so duplicate dispatches and
// retries never double-count.
func (s *UsageStore) Record(ctx context.Context, e usage.Event) error {
	var sourceMsgID sql.NullString
	if e.SourceMessageID != "" {
		sourceMsgID = sql.NullString{String: e.SourceMessageID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_usage (
			user_id, interaction_id, command, model,
			input_tokens, output_tokens, total_tokens, source_message_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (interaction_id) DO NOTHING
	`, e.UserID, e.InteractionID, e.Command, e.Model,
		e.InputTokens, e.OutputTokens, e.TotalTokens, sourceMsgID)
	if err != nil {
		return ledgerErr("record usage", err)
	}
	return nil
}

// GetByInteractionID returns the event for an interaction.
func (s *UsageStore) GetByInteractionID(ctx context.Context, interactionID string) (usage.Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvent+`WHERE interaction_id = ?`, interactionID)
	return scanEvent(row, "get by interaction id")
}

// GetBySourceMessageID returns a user's event correlated to a reply message.
func (s *UsageStore) GetBySourceMessageID(ctx context.Context, userID, messageID string) (usage.Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvent+`WHERE user_id = ? AND source_message_id = ?`, userID, messageID)
	return scanEvent(row, "get by source message id")
}

// ListRecentByUser returns a user's events newest first.
func (s *UsageStore) ListRecentByUser(ctx context.Context, userID string, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, selectEvent+`
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, ledgerErr("list recent", err)
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		e, err := scanEvent(rows, "list recent")
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgerErr("list recent", err)
	}
	return events, nil
}

// SumTotalTokensSince sums total_tokens for a user's events recorded at
// or after since. The boundary instant itself counts toward the sum.
func (s *UsageStore) SumTotalTokensSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	// Timestamps are stored in UTC, so the window start is compared in UTC.
	var sum int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_tokens), 0)
		FROM token_usage
		WHERE user_id = ? AND datetime(timestamp) >= datetime(?)
	`, userID, since.UTC().Format(timeLayout)).Scan(&sum)
	if err != nil {
		return 0, ledgerErr("sum total tokens", err)
	}
	return sum, nil
}

const selectEvent = `
	SELECT id, user_id, interaction_id, command, model,
	       input_tokens, output_tokens, total_tokens, timestamp, source_message_id
	FROM token_usage
`

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner, op string) (usage.Event, error) {
	var (
		e           usage.Event
		ts          string
		sourceMsgID sql.NullString
	)
	err := row.Scan(&e.ID, &e.UserID, &e.InteractionID, &e.Command, &e.Model,
		&e.InputTokens, &e.OutputTokens, &e.TotalTokens, &ts, &sourceMsgID)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.Event{}, ports.ErrNotFound
	}
	if err != nil {
		return usage.Event{}, ledgerErr(op, err)
	}

	e.Timestamp, err = time.ParseInLocation(timeLayout, ts, time.UTC)
	if err != nil {
		return usage.Event{}, ledgerErr(op, err)
	}
	e.SourceMessageID = sourceMsgID.String
	return e, nil
}

func ledgerErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ports.ErrLedgerUnavailable, err)
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
