package bootstrap

import (
	"time"

	"github.com/himawari-bot/himawari/adapters/metrics"
)

// metricsObserver bridges dispatch outcomes to the Prometheus
// collector. The app layer only sees the observer interface.
type metricsObserver struct {
	collector *metrics.Collector
}

func (o *metricsObserver) CommandHandled(command, outcome string, d time.Duration) {
	o.collector.CommandsTotal.WithLabelValues(command, outcome).Inc()
	o.collector.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
	switch outcome {
	case "error":
		o.collector.CommandErrors.WithLabelValues(command).Inc()
	case "guard_error":
		o.collector.BudgetCheckErrors.Inc()
	case "record_error":
		o.collector.RecordErrors.Inc()
	}
}

func (o *metricsObserver) BudgetDenied(command string) {
	o.collector.BudgetDenials.WithLabelValues(command).Inc()
}

func (o *metricsObserver) TokensRecorded(model string, input, output int64) {
	o.collector.ObserveTokens(model, input, output)
}
