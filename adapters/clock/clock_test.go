package clock_test

import (
	"testing"
	"time"

	"github.com/himawari-bot/himawari/adapters/clock"
	"github.com/himawari-bot/himawari/domain/budget"
)

func TestReal_Now(t *testing.T) {
	c := clock.Real{}

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestFake_HoldsInstant(t *testing.T) {
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, budget.JST)
	c := clock.NewFake(noon)

	for i := 0; i < 5; i++ {
		if got := c.Now(); !got.Equal(noon) {
			t.Errorf("call %d: Now() = %v, want %v", i, got, noon)
		}
	}
}

func TestFake_Set(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, budget.JST))

	earlier := time.Date(2024, 5, 30, 8, 0, 0, 0, budget.JST)
	c.Set(earlier)

	if got := c.Now(); !got.Equal(earlier) {
		t.Errorf("Now() = %v, want %v", got, earlier)
	}
}

func TestFake_AdvanceAcrossMidnight(t *testing.T) {
	lateEvening := time.Date(2024, 6, 1, 23, 30, 0, 0, budget.JST)
	c := clock.NewFake(lateEvening)

	c.Advance(time.Hour)

	got := c.Now()
	if got.In(budget.JST).Day() != 2 {
		t.Errorf("expected clock past midnight, got %v", got)
	}
	if want := budget.DayStart(got); !want.Equal(time.Date(2024, 6, 2, 0, 0, 0, 0, budget.JST)) {
		t.Errorf("DayStart after crossing = %v", want)
	}
}

func TestFake_AdvanceTo(t *testing.T) {
	noon := time.Date(2024, 6, 1, 12, 0, 0, 0, budget.JST)
	c := clock.NewFake(noon)

	next := budget.NextDayStart(noon)
	c.AdvanceTo(next)
	if got := c.Now(); !got.Equal(next) {
		t.Errorf("Now() = %v, want %v", got, next)
	}

	// An earlier target must not rewind the clock.
	c.AdvanceTo(noon)
	if got := c.Now(); !got.Equal(next) {
		t.Errorf("AdvanceTo rewound the clock to %v", got)
	}
}

func TestFake_ConcurrentAccess(t *testing.T) {
	c := clock.NewFake(time.Date(2024, 6, 1, 0, 0, 0, 0, budget.JST))

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = c.Now()
				c.Advance(time.Second)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
