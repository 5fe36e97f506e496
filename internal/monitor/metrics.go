package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"streamhostd/pkg/types"
)

var (
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamhostd",
			Subsystem: "monitor",
			Name:      "probes_total",
			Help:      "Total probe cycles by classified outcome",
		},
		[]string{"status"},
	)

	probesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streamhostd",
			Subsystem: "monitor",
			Name:      "probes_skipped_total",
			Help:      "Ticks skipped because the previous probe was still in flight",
		},
	)

	statusChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streamhostd",
			Subsystem: "monitor",
			Name:      "status_changes_total",
			Help:      "Published service status transitions",
		},
	)

	currentStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "streamhostd",
			Subsystem: "monitor",
			Name:      "service_status",
			Help:      "Current published service status (1 = active value)",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(probesTotal, probesSkipped, statusChangesTotal, currentStatus)
}

func setCurrentStatus(active types.ServiceStatus) {
	for _, s := range []types.ServiceStatus{
		types.StatusOnline, types.StatusOffline, types.StatusAuthRequired, types.StatusUnknown,
	} {
		v := 0.0
		if s == active {
			v = 1.0
		}
		currentStatus.WithLabelValues(string(s)).Set(v)
	}
}
