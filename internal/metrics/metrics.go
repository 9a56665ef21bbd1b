// Package metrics exposes Prometheus collectors for the filter engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the filter engine.
type Metrics struct {
	rulesFired   *prometheus.CounterVec
	dispositions *prometheus.CounterVec
	oracleCalls  *prometheus.CounterVec

	passDuration   *prometheus.HistogramVec
	oracleDuration prometheus.Histogram
}

// New creates a Metrics instance and registers its collectors with the
// default registry. Call it once per process.
func New() *Metrics {
	return &Metrics{
		rulesFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgguard_rules_fired_total",
				Help: "Total number of rule actions executed",
			},
			[]string{"rule", "action", "stage"},
		),

		dispositions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgguard_dispositions_total",
				Help: "Total number of evaluation passes by final disposition",
			},
			[]string{"stage", "disposition"},
		),

		oracleCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgguard_oracle_calls_total",
				Help: "Total number of oracle consultations by result",
			},
			[]string{"result"},
		),

		passDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgguard_pass_duration_seconds",
				Help:    "Duration of one evaluation pass",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		oracleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "msgguard_oracle_duration_seconds",
				Help:    "Duration of oracle consultations",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RuleFired records one executed rule action.
func (m *Metrics) RuleFired(rule, action, stage string) {
	m.rulesFired.WithLabelValues(rule, action, stage).Inc()
}

// ObservePass records the disposition and duration of one pass.
func (m *Metrics) ObservePass(stage, disposition string, duration time.Duration) {
	m.dispositions.WithLabelValues(stage, disposition).Inc()
	m.passDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// OracleCall records one oracle consultation.
func (m *Metrics) OracleCall(result string, duration time.Duration) {
	m.oracleCalls.WithLabelValues(result).Inc()
	if duration > 0 {
		m.oracleDuration.Observe(duration.Seconds())
	}
}
