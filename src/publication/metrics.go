package publication

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edu",
			Name:      "publication_operations_total",
			Help:      "Publications and unpublications, by outcome",
		},
		[]string{"operation", "outcome"},
	)

	publicatorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edu",
			Name:      "publicator_failures_total",
			Help:      "Downloadable formats that failed to build",
		},
		[]string{"format"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edu",
			Name:      "publication_step_duration_seconds",
			Help:      "Duration of the steps of a publication",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	orphanDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edu",
			Name:      "orphan_public_directories",
			Help:      "Public directories with no publication record, as of the last sweep",
		},
	)
)

func recordOutcome(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
