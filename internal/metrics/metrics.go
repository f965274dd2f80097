package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the turn pipeline. A nil *Metrics
// is valid and records nothing.
//
// Metrics:
//   - scene_turns_total{outcome} - turns by result (active, won, lost, rejected, failed)
//   - scene_turn_duration_seconds - end-to-end SubmitTurn latency
//   - scene_clamps_total{field} - guardrail repairs of decision output
//   - scene_upstream_retries_total{stage} - retried decision calls
//   - scene_concurrent_rejections_total - submissions rejected by the session lock
//   - scene_sessions_started_total - sessions created or restarted
type Metrics struct {
	TurnsTotal         *prometheus.CounterVec
	TurnDuration       prometheus.Histogram
	ClampsTotal        *prometheus.CounterVec
	UpstreamRetries    *prometheus.CounterVec
	ConcurrentRejected prometheus.Counter
	SessionsStarted    prometheus.Counter
}

// New creates and registers metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scene_turns_total",
				Help: "Total number of submitted turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scene_turn_duration_seconds",
				Help:    "Duration of turn processing in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
		),
		ClampsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scene_clamps_total",
				Help: "Total number of guardrail clamps applied to decision output",
			},
			[]string{"field"},
		),
		UpstreamRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scene_upstream_retries_total",
				Help: "Total number of retried upstream decision calls",
			},
			[]string{"stage"},
		),
		ConcurrentRejected: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scene_concurrent_rejections_total",
				Help: "Total number of turn submissions rejected because one was in flight",
			},
		),
		SessionsStarted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "scene_sessions_started_total",
				Help: "Total number of sessions started or retried",
			},
		),
	}
}

func (m *Metrics) RecordTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordClamp(field string) {
	if m == nil {
		return
	}
	m.ClampsTotal.WithLabelValues(field).Inc()
}

func (m *Metrics) RecordRetry(stage string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.ConcurrentRejected.Inc()
}

func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}
