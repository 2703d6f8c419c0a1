package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage workflow. All methods are
// safe on a nil receiver so stages can run without metrics in tests.
type Metrics struct {
	Classifications *prometheus.CounterVec   // classifications by category
	LowConfidence   prometheus.Counter       // classifications below the observability threshold
	Routes          *prometheus.CounterVec   // routing decisions by stage and target
	ToolCalls       *prometheus.CounterVec   // tool invocations by agent and tool
	Reviews         *prometheus.CounterVec   // review gate suspensions by kind
	Decisions       *prometheus.CounterVec   // resume decisions by interpretation
	Runs            *prometheus.CounterVec   // finished invocations by status
	RunDuration     *prometheus.HistogramVec // invocation latency by operation
}

// NewMetrics creates and registers the workflow metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Tickets classified, by category",
		}, []string{"category"}),
		LowConfidence: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_low_confidence_classifications_total",
			Help: "Classifications accepted with confidence below 0.5",
		}),
		Routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_routes_total",
			Help: "Routing decisions, by deciding stage and target",
		}, []string{"stage", "target"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_tool_calls_total",
			Help: "Tool invocations executed, by agent and tool",
		}, []string{"agent", "tool"}),
		Reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_reviews_total",
			Help: "Runs suspended for human review, by kind",
		}, []string{"kind"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_review_decisions_total",
			Help: "Human review decisions, by interpretation",
		}, []string{"decision"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_runs_total",
			Help: "Graph invocations finished, by status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_run_duration_seconds",
			Help:    "Graph invocation latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Classifications)
	reg.MustRegister(m.LowConfidence)
	reg.MustRegister(m.Routes)
	reg.MustRegister(m.ToolCalls)
	reg.MustRegister(m.Reviews)
	reg.MustRegister(m.Decisions)
	reg.MustRegister(m.Runs)
	reg.MustRegister(m.RunDuration)

	return m
}

func (m *Metrics) ObserveClassification(category string, lowConfidence bool) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(category).Inc()
	if lowConfidence {
		m.LowConfidence.Inc()
	}
}

func (m *Metrics) ObserveRoute(stage, target string) {
	if m == nil {
		return
	}
	m.Routes.WithLabelValues(stage, target).Inc()
}

func (m *Metrics) ObserveToolCall(agent, tool string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(agent, tool).Inc()
}

func (m *Metrics) ObserveReview(kind string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveRun(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
