package provision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for provisioning runs.
type Metrics struct {
	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	DocumentsCreated prometheus.Counter
	DocumentsUpdated prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_provision_runs_total",
			Help: "Total provisioning runs by mode and status",
		}, []string{"mode", "status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboard_provision_run_duration_seconds",
			Help:    "Duration of provisioning runs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboard_provision_documents_created_total",
			Help: "Documents created by apply runs",
		}),
		DocumentsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboard_provision_documents_updated_total",
			Help: "Documents updated by apply runs",
		}),
	}
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(mode, status string, start time.Time) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(mode, status).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// RecordApplied counts an apply result.
func (m *Metrics) RecordApplied(created, updated int) {
	if m == nil {
		return
	}
	m.DocumentsCreated.Add(float64(created))
	m.DocumentsUpdated.Add(float64(updated))
}
