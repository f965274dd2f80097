package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTurn("active", 2*time.Second)
	m.RecordTurn("lost", time.Second)
	m.RecordClamp("hp_delta")
	m.RecordClamp("hp_delta")
	m.RecordRetry("evaluator")
	m.RecordRejected()
	m.RecordSessionStarted()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("active")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClampsTotal.WithLabelValues("hp_delta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRetries.WithLabelValues("evaluator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConcurrentRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsStarted))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTurn("won", time.Second)
		m.RecordClamp("score")
		m.RecordRetry("director")
		m.RecordRejected()
		m.RecordSessionStarted()
	})
}
