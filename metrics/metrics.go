// Package metrics exposes Prometheus collectors for the provisioning worker
// and a small HTTP server serving them.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_jobs_total",
			Help: "Provisioning jobs processed, by outcome (success/failure).",
		},
		[]string{"outcome"},
	)

	pipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_pipeline_failures_total",
			Help: "Failed pipeline runs by error kind.",
		},
		[]string{"kind"},
	)

	tokenWaitAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioning_token_wait_attempts_total",
			Help: "Token detection attempts that found no token.",
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provisioning_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage", "success"},
	)

	jobSourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_job_source_errors_total",
			Help: "Failed job-source calls by operation.",
		},
		[]string{"op"},
	)

	archiveErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioning_archive_errors_total",
			Help: "Artifacts that could not be archived.",
		},
	)

	busy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "provisioning_busy",
			Help: "1 while a provisioning pipeline is running.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			jobsTotal, pipelineFailures, tokenWaitAttempts,
			stageDuration, jobSourceErrors, archiveErrors, busy,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// JobCompleted records a finished job. An empty kind means success.
func JobCompleted(kind string) {
	if kind == "" {
		jobsTotal.WithLabelValues("success").Inc()
		return
	}
	jobsTotal.WithLabelValues("failure").Inc()
	pipelineFailures.WithLabelValues(kind).Inc()
}

// TokenWaitAttempt records a detection attempt that found no token.
func TokenWaitAttempt() {
	tokenWaitAttempts.Inc()
}

// ObserveStage records the duration of a pipeline stage.
func ObserveStage(stage string, d time.Duration, success bool) {
	s := "true"
	if !success {
		s = "false"
	}
	stageDuration.WithLabelValues(norm(stage), s).Observe(d.Seconds())
}

// JobSourceError records a failed call to the job source.
func JobSourceError(op string) {
	jobSourceErrors.WithLabelValues(norm(op)).Inc()
}

// ArchiveError records an artifact that could not be archived.
func ArchiveError() {
	archiveErrors.Inc()
}

// SetBusy flags whether a pipeline is running.
func SetBusy(b bool) {
	if b {
		busy.Set(1)
	} else {
		busy.Set(0)
	}
}
