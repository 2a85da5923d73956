package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the survey service.
type Metrics struct {
	// Session engine
	AnswerChanges  *prometheus.CounterVec
	Recomputations prometheus.Counter
	Navigations    *prometheus.CounterVec
	PrunedAnswers  prometheus.Counter
	ActiveSessions prometheus.Gauge

	// Persistence
	AutosaveDuration prometheus.Histogram
	AutosaveFailures *prometheus.CounterVec
	PersistedRows    *prometheus.CounterVec

	// Definitions
	SurveyCacheHits   prometheus.Counter
	SurveyCacheMisses prometheus.Counter
}

// NewMetrics creates a Metrics instance with every collector registered on
// registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AnswerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "survey_answer_changes_total",
				Help: "Answer updates received, by whether they changed the stored value",
			},
			[]string{"changed"},
		),
		Recomputations: factory.NewCounter(prometheus.CounterOpts{
			Name: "survey_recomputations_total",
			Help: "Visibility and reachability recomputations",
		}),
		Navigations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "survey_navigations_total",
				Help: "Navigation requests by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		PrunedAnswers: factory.NewCounter(prometheus.CounterOpts{
			Name: "survey_pruned_answers_total",
			Help: "Answers removed because their section became unreachable",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "survey_active_sessions",
			Help: "Sessions currently held in memory",
		}),
		AutosaveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "survey_autosave_duration_seconds",
			Help:    "Time spent waiting for autosave during navigation",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		AutosaveFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "survey_autosave_failures_total",
				Help: "Autosave attempts that failed or timed out",
			},
			[]string{"reason"},
		),
		PersistedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "survey_persisted_rows_total",
				Help: "Response rows written by the persistence worker",
			},
			[]string{"op"},
		),
		SurveyCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "survey_definition_cache_hits_total",
			Help: "Survey definitions served from Redis",
		}),
		SurveyCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "survey_definition_cache_misses_total",
			Help: "Survey definitions loaded from PostgreSQL",
		}),
	}
}

// Nop returns metrics registered on a throwaway registry.
func Nop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveAutosave records an autosave attempt.
func (m *Metrics) ObserveAutosave(started time.Time, reason string) {
	m.AutosaveDuration.Observe(time.Since(started).Seconds())
	if reason != "" {
		m.AutosaveFailures.WithLabelValues(reason).Inc()
	}
}

// ObserveNavigation records the outcome of a navigation request.
func (m *Metrics) ObserveNavigation(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.Navigations.WithLabelValues(action, outcome).Inc()
}
