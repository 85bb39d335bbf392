package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels refresh cycles that completed with all sources.
	OutcomeSuccess = "success"
	// OutcomeDegraded labels refresh cycles where at least one source fell
	// back to the previous result.
	OutcomeDegraded = "degraded"
)

var (
	processesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healflow_console",
			Name:      "processes_total",
			Help:      "Total number of OODA processes finished, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	stageStepSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "healflow_console",
			Name:      "stage_step_seconds",
			Help:      "Stage step latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
		},
		[]string{"stage"},
	)

	hilResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healflow_console",
			Name:      "hil_resolutions_total",
			Help:      "Total number of human approval decisions, partitioned by decision.",
		},
		[]string{"decision"},
	)

	refreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healflow_console",
			Name:      "refresh_cycles_total",
			Help:      "Total snapshot refresh cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	refreshSourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healflow_console",
			Name:      "refresh_source_failures_total",
			Help:      "Refresh source fetch failures, partitioned by source.",
		},
		[]string{"source"},
	)
)

// Register attaches console collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		processesTotal,
		stageStepSeconds,
		hilResolutionsTotal,
		refreshCyclesTotal,
		refreshSourceFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveProcess records a finished process outcome.
func ObserveProcess(outcome string) {
	processesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records a stage step duration.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageStepSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHILResolution records an operator decision.
func ObserveHILResolution(decision string) {
	hilResolutionsTotal.WithLabelValues(decision).Inc()
}

// ObserveRefresh records a refresh cycle and any per-source failures.
func ObserveRefresh(failedSources []string) {
	outcome := OutcomeSuccess
	if len(failedSources) > 0 {
		outcome = OutcomeDegraded
	}
	refreshCyclesTotal.WithLabelValues(outcome).Inc()
	for _, source := range failedSources {
		refreshSourceFailuresTotal.WithLabelValues(source).Inc()
	}
}
