package journal

import "github.com/prometheus/client_golang/prometheus"

var (
	appendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "journal",
		Name:      "append_seconds",
		Help:      "Latency for appending applied batches to the journal.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	replayLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "journal",
		Name:      "replay_seconds",
		Help:      "Latency for full journal replays.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(appendLatency, replayLatency)
}
