// Package app contains the application services that tie the domain
// logic to the storage and collaborator ports.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/domain/usage"
	"github.com/himawari-bot/himawari/ports"
)

// RecordParams carries one completed model call for ledgering.
type RecordParams struct {
	UserID          string
	InteractionID   string
	Command         string
	Model           string
	Usage           usage.RawUsage
	SourceMessageID string
}

// UsageService owns the usage ledger: it validates provider-reported
// counts, appends events, and answers daily-budget queries.
type UsageService struct {
	store  ports.UsageStore
	clock  ports.Clock
	logger zerolog.Logger
}

// NewUsageService creates a usage service.
func NewUsageService(store ports.UsageStore, clock ports.Clock, logger zerolog.Logger) *UsageService {
	return &UsageService{store: store, clock: clock, logger: logger}
}

// RecordUsage validates the raw provider counts and appends one event
// to the ledger, returning the canonical totals that were written. The
// total is always recomputed from input+output; duplicate interaction
// IDs are absorbed by the store.
func (s *UsageService) RecordUsage(ctx context.Context, p RecordParams) (usage.Totals, error) {
	totals, err := usage.NewTotals(p.Usage)
	if err != nil {
		return usage.Totals{}, fmt.Errorf("validate usage: %w", err)
	}

	e := usage.NewEvent(p.UserID, p.InteractionID, p.Command, p.Model, totals, p.SourceMessageID)
	if err := s.store.Record(ctx, e); err != nil {
		return usage.Totals{}, err
	}

	s.logger.Debug().
		Str("user_id", p.UserID).
		Str("command", p.Command).
		Int64("total_tokens", totals.TotalTokens).
		Msg("usage recorded")
	return totals, nil
}

// RemainingDailyTokens returns the unspent portion of a user's daily
// token budget, counted from the most recent JST midnight. Never
// negative. The check is read-only and intentionally not linearized
// against concurrent writes: a burst near the limit may overshoot.
func (s *UsageService) RemainingDailyTokens(ctx context.Context, userID string, dailyLimit int64) (int64, error) {
	windowStart := budget.DayStart(s.clock.Now())
	used, err := s.store.SumTotalTokensSince(ctx, userID, windowStart)
	if err != nil {
		return 0, err
	}
	return budget.Remaining(dailyLimit, used), nil
}

// GetByInteractionID returns the ledgered event for an interaction.
func (s *UsageService) GetByInteractionID(ctx context.Context, interactionID string) (usage.Event, error) {
	return s.store.GetByInteractionID(ctx, interactionID)
}

// GetBySourceMessageID returns a user's event for a reply message.
func (s *UsageService) GetBySourceMessageID(ctx context.Context, userID, messageID string) (usage.Event, error) {
	return s.store.GetBySourceMessageID(ctx, userID, messageID)
}

// ListRecentByUser returns a user's events newest first.
func (s *UsageService) ListRecentByUser(ctx context.Context, userID string, limit int) ([]usage.Event, error) {
	return s.store.ListRecentByUser(ctx, userID, limit)
}
