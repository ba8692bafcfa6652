package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/ports"
)

// Scheduler arms the daily aggregation at each JST midnight. A run's
// failure is logged and contained; the next midnight is always armed,
// so the schedule heals itself.
type Scheduler struct {
	aggregator *AggregationService
	clock      ports.Clock
	logger     zerolog.Logger

	// OnRun, when set before Start, is invoked after every run with the
	// run's outcome. Bootstrap hangs metrics off it; tests use it to
	// observe the schedule.
	OnRun func(usageDate string, rows int64, err error)

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewScheduler creates a scheduler; call Start to arm it.
func NewScheduler(aggregator *AggregationService, clock ports.Clock, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		clock:      clock,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start arms the first run immediately, whatever the time of day.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the schedule and waits for the loop to exit. A run
// already in flight completes first.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	for {
		now := s.clock.Now()
		target := budget.NextDayStart(now)
		s.logger.Info().Dur("delay", target.Sub(now)).Msg("aggregation scheduler armed")

		timer := time.NewTimer(target.Sub(now))
		select {
		case <-timer.C:
			s.runOnce(target)
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// runOnce aggregates with the midnight the run was armed for as its
// reference instant. A timer that fires marginally early still closes
// out the day that just ended, not the one before it.
func (s *Scheduler) runOnce(ref time.Time) {
	usageDate, rows, err := s.aggregator.RunDaily(context.Background(), ref)
	if err != nil {
		// Contained here: the loop re-arms regardless.
		s.logger.Error().Err(err).Str("usage_date", usageDate).Msg("daily aggregation run failed")
	}
	if s.OnRun != nil {
		s.OnRun(usageDate, rows, err)
	}
}
