// Package metrics instruments jn's executor with prometheus counters
// and histograms, following the singleton-registry pattern the host
// project uses for its scheduler metrics
// (internal/services/scheduler/metrics.go): promauto-registered
// collectors behind a small recorder type, built by an explicit
// constructor that takes the registerer (the CLI passes
// prometheus.DefaultRegisterer; tests can pass an isolated registry).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jn-run/jn/internal/executor"
)

// Metrics holds every collector jn's pipeline executor reports against.
// Namespace is configurable (internal/config's MetricsNamespace) so a
// deployment embedding multiple jn instances can disambiguate them.
type Metrics struct {
	stagesSpawned   *prometheus.CounterVec
	stageExitCodes  *prometheus.CounterVec
	pipelineRuns    prometheus.Counter
	pipelineErrors  prometheus.Counter
	pipelineSeconds prometheus.Histogram
	activePipelines prometheus.Gauge
}

// New registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with collectors
// registered on prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stagesSpawned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "stages_spawned_total",
			Help:      "Pipeline stages spawned, labeled by plugin name.",
		}, []string{"plugin"}),
		stageExitCodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "stage_exits_total",
			Help:      "Pipeline stage exits, labeled by plugin name and exit code.",
		}, []string{"plugin", "exit_code"}),
		pipelineRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline executions.",
		}),
		pipelineErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "pipeline_errors_total",
			Help:      "Pipeline executions that ended in a non-zero overall exit code.",
		}),
		pipelineSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "pipeline_duration_seconds",
			Help:      "Wall-clock duration of a full pipeline execution.",
			Buckets:   prometheus.DefBuckets,
		}),
		activePipelines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "active_pipelines",
			Help:      "Pipelines currently spawned and not yet reaped.",
		}),
	}
}

// Hooks adapts Metrics to executor.Hooks so a run can be instrumented
// by passing executor.Options{Hooks: m.Hooks()} straight into Execute.
func (m *Metrics) Hooks() executor.Hooks {
	if m == nil {
		return executor.Hooks{}
	}
	return executor.Hooks{
		OnStageSpawn: func(label string) {
			m.stagesSpawned.WithLabelValues(label).Inc()
		},
		OnStageExit: func(label string, exitCode int, signal string) {
			code := signal
			if code == "" {
				code = strconv.Itoa(exitCode)
			}
			m.stageExitCodes.WithLabelValues(label, code).Inc()
		},
	}
}

// RecordRun wraps one top-level pipeline execution (a `jn get`/`jn put`
// invocation, or one scheduled job run), timing it and bumping the
// error/active-pipeline gauges. The returned func must be called with
// the run's outcome once Execute returns.
func (m *Metrics) RecordRun() func(exitCode int) {
	if m == nil {
		return func(int) {}
	}
	m.pipelineRuns.Inc()
	m.activePipelines.Inc()
	start := time.Now()
	return func(exitCode int) {
		m.pipelineSeconds.Observe(time.Since(start).Seconds())
		m.activePipelines.Dec()
		if exitCode != 0 {
			m.pipelineErrors.Inc()
		}
	}
}
