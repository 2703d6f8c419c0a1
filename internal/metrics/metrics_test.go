package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveClassification("billing", false)
	m.ObserveClassification("billing", true)
	m.ObserveRoute("assessment", "human_review")
	m.ObserveToolCall("administration", "call_external_admin_a2a_agent")
	m.ObserveReview("administration")
	m.ObserveDecision("cancelled")
	m.ObserveRun("start", "suspended", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classifications.WithLabelValues("billing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LowConfidence))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Routes.WithLabelValues("assessment", "human_review")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCalls.WithLabelValues("administration", "call_external_admin_a2a_agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reviews.WithLabelValues("administration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("suspended")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveClassification("technical", true)
		m.ObserveRoute("a", "b")
		m.ObserveToolCall("a", "b")
		m.ObserveReview("generic")
		m.ObserveDecision("confirmed")
		m.ObserveRun("resume", "completed", time.Second)
	})
}
