package export

import "github.com/prometheus/client_golang/prometheus"

var (
	exportCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "export",
		Name:      "planets_total",
		Help:      "Planet exports uploaded per instance.",
	}, []string{"instance"})

	exportBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "export",
		Name:      "bytes_total",
		Help:      "Bytes of planet export data uploaded per instance.",
	}, []string{"instance"})
)

func init() {
	prometheus.MustRegister(exportCount, exportBytes)
}
