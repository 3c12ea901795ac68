package changeset

import "github.com/prometheus/client_golang/prometheus"

var openChangesets = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "changeset",
	Name:      "open",
	Help:      "Number of currently open changesets.",
})

func init() {
	prometheus.MustRegister(openChangesets)
}
