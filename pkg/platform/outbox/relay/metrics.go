package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay throughput and failures.
type Metrics struct {
	Published     prometheus.Counter
	Failures      prometheus.Counter
	BreakerOpen   prometheus.Gauge
	BatchDuration prometheus.Histogram
}

// NewMetrics registers relay metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "habitat_outbox_published_total",
			Help: "Outbox entries acknowledged by the broker",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "habitat_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "habitat_outbox_breaker_open",
			Help: "1 while the broker circuit breaker is open",
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "habitat_outbox_batch_duration_seconds",
			Help:    "Duration of one relay batch",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) observeBatch(start time.Time, published int, failed bool) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(time.Since(start).Seconds())
	m.Published.Add(float64(published))
	if failed {
		m.Failures.Inc()
	}
}

func (m *Metrics) setBreaker(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
