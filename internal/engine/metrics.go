package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var (
	applyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "engine",
		Name:      "apply_seconds",
		Help:      "Time spent applying change batches, validation included.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	validationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "validation_failures_total",
		Help:      "Change batches rejected by the validation pass.",
	})

	applyConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engine",
		Name:      "apply_conflicts_total",
		Help:      "Elements skipped during the apply phase, by operation.",
	}, []string{"operation"})

	tracer = otel.Tracer("github.com/example/osm-edit-engine/engine")
)

func init() {
	prometheus.MustRegister(applyLatency, validationFailures, applyConflicts)
}
