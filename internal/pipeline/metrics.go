package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HendryAvila/steward/internal/proposal"
)

// Metrics are the evaluator's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	evaluations    *prometheus.CounterVec
	rejected       prometheus.Counter
	duration       prometheus.Histogram
	extractorFails *prometheus.CounterVec
	alternatives   prometheus.Histogram
	anomalies      *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "evaluations_total",
			Help:      "Completed proposal evaluations by decision.",
		}, []string{"decision"}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "validation_failures_total",
			Help:      "Evaluations rejected by structural validation.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "steward",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one evaluation run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		extractorFails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "extractor_failures_total",
			Help:      "Extractor calls that failed, timed out or returned a distrusted draft.",
		}, []string{"reason"}),
		alternatives: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "steward",
			Name:      "alternatives_per_evaluation",
			Help:      "Alternatives kept per evaluation.",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "audit_check_failures_total",
			Help:      "Failed audit checks by check name.",
		}, []string{"check"}),
	}
}

func (m *Metrics) observeValidationFailure() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) observeExtractorFailure(reason string) {
	if m == nil {
		return
	}
	m.extractorFails.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeRun(out *proposal.Output, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(string(out.Decision)).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.alternatives.Observe(float64(len(out.Alternatives)))
	for _, c := range out.Audit.Checks {
		if !c.Passed {
			name := c.Name
			if _, ok := IsScreeningRuleCheck(name); ok {
				name = checkScreeningRulePrefix + "*"
			}
			m.anomalies.WithLabelValues(name).Inc()
		}
	}
}
