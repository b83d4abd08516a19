package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envi_stage_runs_total",
		Help: "Stage attempts, including retries.",
	}, []string{"stage"})

	validationChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envi_validation_checks_total",
		Help: "Validator outcomes per checker.",
	}, []string{"checker", "result"})

	retriesExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envi_retries_exhausted_total",
		Help: "Retry loops that gave up and proceeded with partial data.",
	}, []string{"stage"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "envi_stage_duration_seconds",
		Help:    "Wall time of a single stage attempt.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})
)
