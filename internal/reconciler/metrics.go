package reconciler

import "github.com/prometheus/client_golang/prometheus"

var reconcilesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "streamhostd",
		Subsystem: "reconciler",
		Name:      "reconciles_total",
		Help:      "Reconcile protocol runs by path and outcome",
	},
	[]string{"path", "outcome"},
)

func init() {
	prometheus.MustRegister(reconcilesTotal)
}
