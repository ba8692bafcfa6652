// Package memory provides in-memory store implementations, used by the
// app-layer tests and available as a throwaway backend for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/himawari-bot/himawari/domain/usage"
	"github.com/himawari-bot/himawari/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore with
// the same at-most-once insert semantics as the SQLite store.
type UsageStore struct {
	mu     sync.RWMutex
	nextID int64
	events []usage.Event
	byID   map[string]int // interactionID -> index into events

	clock ports.Clock

	// FailWith, when set, makes every call fail with that error. Used
	// to exercise fail-closed paths in tests.
	FailWith error
}

// NewUsageStore creates an empty in-memory usage store. Timestamps are
// assigned from clock at insert time.
func NewUsageStore(clock ports.Clock) *UsageStore {
	return &UsageStore{
		nextID: 1,
		byID:   make(map[string]int),
		clock:  clock,
	}
}

// Record inserts an event, ignoring duplicates on InteractionID.
func (s *UsageStore) Record(_ context.Context, e usage.Event) error {
	if s.FailWith != nil {
		return s.FailWith
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.InteractionID]; exists {
		return nil
	}

	e.ID = s.nextID
	s.nextID++
	e.Timestamp = s.clock.Now().UTC().Truncate(time.Second)
	s.byID[e.InteractionID] = len(s.events)
	s.events = append(s.events, e)
	return nil
}

// GetByInteractionID returns the event for an interaction.
func (s *UsageStore) GetByInteractionID(_ context.Context, interactionID string) (usage.Event, error) {
	if s.FailWith != nil {
		return usage.Event{}, s.FailWith
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[interactionID]
	if !ok {
		return usage.Event{}, ports.ErrNotFound
	}
	return s.events[idx], nil
}

// GetBySourceMessageID returns a user's event for a reply message.
func (s *UsageStore) GetBySourceMessageID(_ context.Context, userID, messageID string) (usage.Event, error) {
	if s.FailWith != nil {
		return usage.Event{}, s.FailWith
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.UserID == userID && e.SourceMessageID != "" && e.SourceMessageID == messageID {
			return e, nil
		}
	}
	return usage.Event{}, ports.ErrNotFound
}

// ListRecentByUser returns a user's events newest first.
func (s *UsageStore) ListRecentByUser(_ context.Context, userID string, limit int) ([]usage.Event, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []usage.Event
	for _, e := range s.events {
		if e.UserID == userID {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID > events[j].ID })
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// SumTotalTokensSince sums total tokens for events at or after since.
func (s *UsageStore) SumTotalTokensSince(_ context.Context, userID string, since time.Time) (int64, error) {
	if s.FailWith != nil {
		return 0, s.FailWith
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, e := range s.events {
		if e.UserID == userID && !e.Timestamp.Before(since) {
			sum += e.TotalTokens
		}
	}
	return sum, nil
}

// Len reports the number of stored events.
func (s *UsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Ensure interface compliance.
var _ ports.UsageStore = (*UsageStore)(nil)
