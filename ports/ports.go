// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/himawari-bot/himawari/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrNotFound is returned by lookup methods when no record matches.
// Absence is an expected outcome, not a store failure.
var ErrNotFound = errors.New("not found")

// ErrLedgerUnavailable wraps storage I/O failures in the live ledger.
// A budget check that fails this way must deny the gated action.
var ErrLedgerUnavailable = errors.New("usage ledger unavailable")

// ErrAggregationFailure wraps any failure during a daily aggregation
// run. Contained at the scheduler boundary; never fatal.
var ErrAggregationFailure = errors.New("daily aggregation failed")

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// UsageStore persists the append-only ledger of usage events.
type UsageStore interface {
	// Record inserts an event, assigning its timestamp. A duplicate
	// InteractionID is silently ignored so retries stay at-most-once.
	Record(ctx context.Context, e usage.Event) error

	// GetByInteractionID returns the event for an interaction, or
	// ErrNotFound.
	GetByInteractionID(ctx context.Context, interactionID string) (usage.Event, error)

	// GetBySourceMessageID returns a user's event correlated to a reply
	// message, or ErrNotFound.
	GetBySourceMessageID(ctx context.Context, userID, messageID string) (usage.Event, error)

	// ListRecentByUser returns a user's events newest first, at most
	// limit rows (default 20 when limit <= 0).
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]usage.Event, error)

	// SumTotalTokensSince sums total_tokens for a user's events with
	// timestamp >= since. Zero when no rows match.
	SumTotalTokensSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// DailyTotal is one archived row: a user's summed usage for one JST
// calendar date.
type DailyTotal struct {
	UsageDate    string
	UserID       string
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ArchiveStore persists per-date summaries, one store per calendar date.
type ArchiveStore interface {
	// ArchiveDay replaces the daily totals for usageDate in that date's
	// archive store with totals recomputed from the live ledger, and
	// returns the number of rows written. Idempotent: re-runs for the
	// same date yield the same rows. The archive handle is always
	// released, even on failure.
	ArchiveDay(ctx context.Context, usageDate string) (int64, error)

	// DailyTotals reads back archived rows for usageDate, ordered by
	// user ID. ErrNotFound when no archive store exists for that date.
	DailyTotals(ctx context.Context, usageDate string) ([]DailyTotal, error)
}

// -----------------------------------------------------------------------------
// Collaborator Ports
// -----------------------------------------------------------------------------

// ChatTurn is one prior exchange in a multi-turn conversation.
type ChatTurn struct {
	FromBot bool
	Content string
}

// GenerateRequest describes one text-generation call. History, when
// present, is ordered oldest first and precedes Prompt.
type GenerateRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	System      string
	History     []ChatTurn
	Temperature *float32
	TopP        *float32
}

// GenerateResult carries generated text plus the provider's raw token
// accounting. Usage may be partial or internally inconsistent; callers
// validate it with usage.NewTotals.
type GenerateResult struct {
	Text  string
	Usage usage.RawUsage
}

// TextGenerator produces model completions.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// MathRenderer turns math notation into a PNG image.
type MathRenderer interface {
	RenderPNG(expr string) ([]byte, error)
}

// CommandOption describes one named option a command accepts, used
// when registering commands with the chat platform.
type CommandOption struct {
	Name        string
	Description string
	Required    bool
}

// Interaction is one user-issued command as seen by the dispatcher,
// abstracted from the chat platform's wire types.
type Interaction interface {
	// ID is the platform's unique interaction identifier.
	ID() string
	// UserID is the stable identifier of the requesting user.
	UserID() string
	// Command is the invoked command name.
	Command() string
	// Option returns a named string option, "" when absent.
	Option(name string) string

	// Reply sends a text response and returns the created message ID.
	Reply(ctx context.Context, text string) (string, error)
	// ReplyImage sends a PNG attachment response.
	ReplyImage(ctx context.Context, name string, png []byte) (string, error)
	// ReplyInThread replies inside a new thread titled title and
	// returns the thread message ID.
	ReplyInThread(ctx context.Context, title, text string) (string, error)
}
