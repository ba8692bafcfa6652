// Package metrics provides Prometheus metrics collection for the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the bot.
type Collector struct {
	// Command dispatch metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	CommandErrors   *prometheus.CounterVec

	// Budget metrics
	BudgetDenials     *prometheus.CounterVec
	BudgetCheckErrors prometheus.Counter

	// Ledger metrics
	TokensRecorded *prometheus.CounterVec
	RecordErrors   prometheus.Counter

	// Aggregation metrics
	AggregationRuns    *prometheus.CounterVec
	AggregationRows    prometheus.Gauge
	AggregationLastRun prometheus.Gauge
}

// New creates a metrics collector registered on the default registry.
func New() *Collector {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector on a private registry (tests).
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return newWith(promauto.With(reg))
}

func newWith(factory promauto.Factory) *Collector {
	return &Collector{
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "commands_total",
				Help:      "Total number of commands dispatched",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "himawari",
				Name:      "command_duration_seconds",
				Help:      "Command handling duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"command"},
		),
		CommandErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "command_errors_total",
				Help:      "Total number of command handler failures",
			},
			[]string{"command"},
		),
		BudgetDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "budget_denials_total",
				Help:      "Total number of commands denied by the daily token budget",
			},
			[]string{"command"},
		),
		BudgetCheckErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "budget_check_errors_total",
				Help:      "Total number of budget checks that failed closed",
			},
		),
		TokensRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "tokens_recorded_total",
				Help:      "Total tokens written to the usage ledger",
			},
			[]string{"model", "direction"},
		),
		RecordErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "record_errors_total",
				Help:      "Total number of failed usage ledger writes",
			},
		),
		AggregationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "himawari",
				Name:      "aggregation_runs_total",
				Help:      "Total number of daily aggregation runs",
			},
			[]string{"outcome"},
		),
		AggregationRows: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "himawari",
				Name:      "aggregation_rows_written",
				Help:      "Rows written by the most recent aggregation run",
			},
		),
		AggregationLastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "himawari",
				Name:      "aggregation_last_run_timestamp",
				Help:      "Unix timestamp of the last successful aggregation run",
			},
		),
	}
}

// ObserveTokens records a ledger write's token counts.
func (c *Collector) ObserveTokens(model string, input, output int64) {
	c.TokensRecorded.WithLabelValues(model, "input").Add(float64(input))
	c.TokensRecorded.WithLabelValues(model, "output").Add(float64(output))
}
