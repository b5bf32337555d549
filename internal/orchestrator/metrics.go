package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashureev/deskroute/internal/domain"
)

// Metrics holds Prometheus metrics for turn processing.
type Metrics struct {
	TurnsTotal          *prometheus.CounterVec // turns by resolved category
	ClassificationTotal *prometheus.CounterVec // category decisions by source
	FallbacksTotal      *prometheus.CounterVec // fallback replies by category and reason
	CollaboratorErrors  *prometheus.CounterVec // directory, conversation log and panic failures
	GreetingsTotal      prometheus.Counter
	TurnDuration        prometheus.Histogram
}

// NewMetrics creates and registers the orchestrator metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskroute_turns_total",
			Help: "Total number of processed turns by issue category",
		}, []string{"category"}),
		ClassificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskroute_classifications_total",
			Help: "Total number of category decisions by source",
		}, []string{"source", "category"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskroute_fallback_replies_total",
			Help: "Total number of fallback replies returned instead of a model reply",
		}, []string{"category", "reason"}),
		CollaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskroute_collaborator_errors_total",
			Help: "Total number of swallowed collaborator failures",
		}, []string{"collaborator"}),
		GreetingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deskroute_greetings_total",
			Help: "Total number of greeting short-circuits",
		}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskroute_turn_duration_seconds",
			Help:    "Turn processing latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	reg.MustRegister(
		m.TurnsTotal,
		m.ClassificationTotal,
		m.FallbacksTotal,
		m.CollaboratorErrors,
		m.GreetingsTotal,
		m.TurnDuration,
	)
	return m
}

// ObserveFallback implements agent.FallbackObserver.
func (m *Metrics) ObserveFallback(category domain.IssueType, reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(string(category), reason).Inc()
}

func (m *Metrics) collaboratorError(name string) {
	if m == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(name).Inc()
}

func (m *Metrics) classification(d Decision) {
	if m == nil {
		return
	}
	m.ClassificationTotal.WithLabelValues(d.Source, string(d.Category)).Inc()
}

func (m *Metrics) turn(category domain.IssueType, seconds float64) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(string(category)).Inc()
	m.TurnDuration.Observe(seconds)
}

func (m *Metrics) greeting() {
	if m == nil {
		return
	}
	m.GreetingsTotal.Inc()
}
