package feed

import "github.com/prometheus/client_golang/prometheus"

var (
	feedConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "feed",
		Name:      "connections",
		Help:      "Active websocket feed subscribers per instance.",
	}, []string{"instance"})

	feedDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "deliveries_total",
		Help:      "Feed events delivered to subscribers per instance.",
	}, []string{"instance"})
)

func init() {
	prometheus.MustRegister(feedConnections, feedDeliveries)
}
