package session

import "github.com/prometheus/client_golang/prometheus"

var (
	storeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_session_store_operations_total",
			Help: "Session store operations by operation and result",
		},
		[]string{"op", "result"},
	)

	saveOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_session_saves_total",
			Help: "Session save decisions by outcome",
		},
		[]string{"outcome"},
	)
)

// Collectors returns the session metrics for registration on a metrics registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{storeOperationsTotal, saveOutcomesTotal}
}

func recordStoreOp(op, result string) {
	storeOperationsTotal.WithLabelValues(op, result).Inc()
}

func recordSave(outcome string) {
	saveOutcomesTotal.WithLabelValues(outcome).Inc()
}
