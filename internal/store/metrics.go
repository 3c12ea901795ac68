package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/osm-edit-engine/internal/osm"
)

var (
	elementCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "store",
		Name:      "elements",
		Help:      "Number of distinct elements held per type.",
	}, []string{"type"})

	bboxQueryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "store",
		Name:      "bbox_query_seconds",
		Help:      "Latency of bounding-box queries including closure expansion.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
)

func init() {
	prometheus.MustRegister(elementCount, bboxQueryLatency)
}

func updateElementGauges(elements map[osm.ElementType]map[int64]*record) {
	for t, m := range elements {
		elementCount.WithLabelValues(string(t)).Set(float64(len(m)))
	}
}
