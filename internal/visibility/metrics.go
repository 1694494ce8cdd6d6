package visibility

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for predicate composition. Predicates run on
// the hot path of every list query, so durations are tracked tightly.
type Metrics struct {
	PredicatesComposed *prometheus.CounterVec
	ComposeDuration    prometheus.Histogram
}

// Outcome labels for PredicatesComposed.
const (
	OutcomeBypass       = "bypass"
	OutcomeScoped       = "scoped"
	OutcomeDenyAll      = "deny_all"
	OutcomeUnrestricted = "unrestricted"
)

func NewMetrics() *Metrics {
	return &Metrics{
		PredicatesComposed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_visibility_predicates_total",
			Help: "Total number of row-visibility predicates composed",
		}, []string{"doctype", "outcome"}),
		ComposeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboard_visibility_compose_duration_seconds",
			Help:    "Duration of predicate composition (query hot path)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

func (m *Metrics) RecordPredicate(doctype, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.PredicatesComposed.WithLabelValues(doctype, outcome).Inc()
	m.ComposeDuration.Observe(time.Since(start).Seconds())
}
