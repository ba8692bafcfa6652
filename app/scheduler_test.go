package app_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/adapters/clock"
	"github.com/himawari-bot/himawari/adapters/idgen"
	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/domain/budget"
)

type runOutcome struct {
	usageDate string
	rows      int64
	err       error
}

// startScheduler pins the fake clock a few milliseconds before the JST
// midnight ending 2024-06-01, so the armed timer fires almost
// immediately, over and over. The clock never reaches midnight, which
// is exactly the early-firing case: each run must still aggregate
// 2024-06-01, the day its target midnight closes out.
func startScheduler(t *testing.T, archive *fakeArchive) (*app.Scheduler, chan runOutcome) {
	t.Helper()

	fake := clock.NewFake(time.Date(2024, 6, 2, 0, 0, 0, 0, budget.JST).Add(-5 * time.Millisecond))
	svc := app.NewAggregationService(archive, idgen.NewSequential("run-"), zerolog.Nop())
	s := app.NewScheduler(svc, fake, zerolog.Nop())

	outcomes := make(chan runOutcome, 1024)
	s.OnRun = func(usageDate string, rows int64, err error) {
		outcomes <- runOutcome{usageDate, rows, err}
	}

	s.Start()
	t.Cleanup(s.Stop)
	return s, outcomes
}

func waitRun(t *testing.T, outcomes chan runOutcome) runOutcome {
	t.Helper()
	select {
	case o := <-outcomes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never ran")
		return runOutcome{}
	}
}

func TestScheduler_RunsAndRearms(t *testing.T) {
	archive := &fakeArchive{rows: 2}
	_, outcomes := startScheduler(t, archive)

	first := waitRun(t, outcomes)
	if first.err != nil {
		t.Fatalf("first run: %v", first.err)
	}
	if first.usageDate != "2024-06-01" {
		t.Errorf("usageDate = %s, want 2024-06-01", first.usageDate)
	}
	if first.rows != 2 {
		t.Errorf("rows = %d, want 2", first.rows)
	}

	// The schedule re-arms by itself: a second run arrives without any
	// further prompting.
	waitRun(t, outcomes)
}

func TestScheduler_SurvivesFailedRun(t *testing.T) {
	archive := &fakeArchive{rows: 1, failFirst: 1}
	_, outcomes := startScheduler(t, archive)

	first := waitRun(t, outcomes)
	if first.err == nil {
		t.Fatal("expected the first run to fail")
	}

	second := waitRun(t, outcomes)
	if second.err != nil {
		t.Fatalf("second run after failure: %v", second.err)
	}
	if second.rows != 1 {
		t.Errorf("rows = %d, want 1", second.rows)
	}
}

func TestScheduler_StopHaltsSchedule(t *testing.T) {
	archive := &fakeArchive{rows: 1}
	s, outcomes := startScheduler(t, archive)

	waitRun(t, outcomes)
	s.Stop()

	calls := len(archive.callDates())
	time.Sleep(50 * time.Millisecond)
	if got := len(archive.callDates()); got != calls {
		t.Errorf("runs after Stop: %d -> %d", calls, got)
	}
}
