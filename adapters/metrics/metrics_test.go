package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/himawari-bot/himawari/adapters/metrics"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewWithRegistry(reg)

	if c == nil {
		t.Fatal("expected non-nil collector")
	}
	if c.CommandsTotal == nil || c.BudgetDenials == nil || c.AggregationRuns == nil {
		t.Error("expected all metric vectors to be initialized")
	}
}

func TestCommandsTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewWithRegistry(reg)

	c.CommandsTotal.WithLabelValues("chat", "ok").Inc()
	c.CommandsTotal.WithLabelValues("chat", "ok").Inc()
	c.CommandsTotal.WithLabelValues("chat", "denied").Inc()

	got := testutil.ToFloat64(c.CommandsTotal.WithLabelValues("chat", "ok"))
	if got != 2 {
		t.Errorf("commands ok = %v, want 2", got)
	}
}

func TestObserveTokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewWithRegistry(reg)

	c.ObserveTokens("gpt-4o-mini", 100, 50)
	c.ObserveTokens("gpt-4o-mini", 10, 5)

	if got := testutil.ToFloat64(c.TokensRecorded.WithLabelValues("gpt-4o-mini", "input")); got != 110 {
		t.Errorf("input tokens = %v, want 110", got)
	}
	if got := testutil.ToFloat64(c.TokensRecorded.WithLabelValues("gpt-4o-mini", "output")); got != 55 {
		t.Errorf("output tokens = %v, want 55", got)
	}
}

func TestAggregationRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewWithRegistry(reg)

	c.AggregationRuns.WithLabelValues("success").Inc()
	c.AggregationRuns.WithLabelValues("failure").Inc()
	c.AggregationRuns.WithLabelValues("failure").Inc()

	if got := testutil.ToFloat64(c.AggregationRuns.WithLabelValues("failure")); got != 2 {
		t.Errorf("failed runs = %v, want 2", got)
	}
}
