package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/ports"
)

// AggregationService summarizes the previous JST day's ledger into a
// per-date archive store. Each run gets a generated ID so its log lines
// correlate across retries.
type AggregationService struct {
	archive ports.ArchiveStore
	ids     ports.IDGenerator
	logger  zerolog.Logger
}

// NewAggregationService creates an aggregation service.
func NewAggregationService(archive ports.ArchiveStore, ids ports.IDGenerator, logger zerolog.Logger) *AggregationService {
	return &AggregationService{archive: archive, ids: ids, logger: logger}
}

// RunDaily aggregates the JST day immediately preceding ref's JST date
// and returns the usage date and rows written. Re-runs for the same
// date replace the previous rows, so the operation is idempotent. Any
// failure is reported as an aggregation failure.
func (s *AggregationService) RunDaily(ctx context.Context, ref time.Time) (string, int64, error) {
	usageDate := budget.PreviousDate(ref)

	runID := s.ids.New()
	rows, err := s.archive.ArchiveDay(ctx, usageDate)
	if err != nil {
		return usageDate, 0, fmt.Errorf("%w: usage date %s: %w", ports.ErrAggregationFailure, usageDate, err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("usage_date", usageDate).
		Int64("rows", rows).
		Msg("daily aggregation stored")
	return usageDate, rows, nil
}

// RunForDate aggregates a specific JST calendar date. Used by the
// operator-facing CLI and admin endpoint; overlapping a scheduled run
// for the same date is merely redundant since both recompute from the
// same ledger window.
func (s *AggregationService) RunForDate(ctx context.Context, usageDate string) (int64, error) {
	runID := s.ids.New()
	rows, err := s.archive.ArchiveDay(ctx, usageDate)
	if err != nil {
		return 0, fmt.Errorf("%w: usage date %s: %w", ports.ErrAggregationFailure, usageDate, err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("usage_date", usageDate).
		Int64("rows", rows).
		Msg("manual aggregation stored")
	return rows, nil
}
