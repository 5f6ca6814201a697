package scheduler

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeWorked       = "worked"
	outcomeSkipped      = "skipped"
	outcomeFailed       = "failed"
	outcomeAcquireError = "acquire_error"
)

var (
	runnerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_runner_ticks_total",
			Help: "Total number of periodic runner iterations by outcome",
		},
		[]string{"task", "outcome"},
	)

	runnerWorkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docflow_runner_work_seconds",
			Help:    "Duration of lock-guarded work passes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	runnerReleaseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_runner_release_errors_total",
			Help: "Total number of failed lock release attempts",
		},
		[]string{"task"},
	)
)

// Collectors returns the runner metrics for registration on a metrics registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{runnerTicksTotal, runnerWorkDuration, runnerReleaseErrorsTotal}
}

func recordRunnerTick(taskName, outcome string) {
	runnerTicksTotal.WithLabelValues(normalizeSchedulerLabel(taskName), normalizeSchedulerLabel(outcome)).Inc()
}

func observeRunnerWork(taskName string, seconds float64) {
	runnerWorkDuration.WithLabelValues(normalizeSchedulerLabel(taskName)).Observe(seconds)
}

func recordRunnerReleaseError(taskName string) {
	runnerReleaseErrorsTotal.WithLabelValues(normalizeSchedulerLabel(taskName)).Inc()
}

func normalizeSchedulerLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
