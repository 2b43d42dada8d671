package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "billing_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
)

var (
	registerOnce sync.Once

	pipelineRunsTotal    *prometheus.CounterVec
	pipelineRunLatency   *prometheus.HistogramVec
	pipelinePhaseTotal   *prometheus.CounterVec
	pipelinePhaseLatency *prometheus.HistogramVec
	stagedRowsWritten    prometheus.Counter

	stagingExportTotal   *prometheus.CounterVec
	stagingExportLatency *prometheus.HistogramVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		pipelineRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_runs_total",
				Help: "Total billing pipeline runs by result",
			},
			[]string{"result"},
		)
		pipelineRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_run_latency_seconds",
				Help:    "Billing pipeline run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		pipelinePhaseTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_phase_total",
				Help: "Total billing pipeline phase executions by phase and result",
			},
			[]string{"phase", "result"},
		)
		pipelinePhaseLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pipeline_phase_latency_seconds",
				Help:    "Billing pipeline phase latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase", "result"},
		)
		stagedRowsWritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "staged_rows_written_total",
				Help: "Total staging rows inserted by pipeline runs",
			},
		)
		stagingExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "staging_export_total",
				Help: "Total staging export operations by format and result",
			},
			[]string{"format", "result"},
		)
		stagingExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "staging_export_latency_seconds",
				Help:    "Staging export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			pipelineRunsTotal,
			pipelineRunLatency,
			pipelinePhaseTotal,
			pipelinePhaseLatency,
			stagedRowsWritten,
			stagingExportTotal,
			stagingExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePipelineRun records a run's duration and result.
func ObservePipelineRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if pipelineRunsTotal != nil {
		pipelineRunsTotal.WithLabelValues(result).Inc()
	}
	if pipelineRunLatency != nil && result != resultRejected {
		pipelineRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObservePipelinePhase records one phase's duration and result.
func ObservePipelinePhase(phase, result string, duration time.Duration) {
	if phase == "" {
		phase = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if pipelinePhaseTotal != nil {
		pipelinePhaseTotal.WithLabelValues(phase, result).Inc()
	}
	if pipelinePhaseLatency != nil {
		pipelinePhaseLatency.WithLabelValues(phase, result).Observe(duration.Seconds())
	}
}

// AddStagedRows counts inserted staging rows.
func AddStagedRows(count int) {
	if count <= 0 {
		return
	}
	if stagedRowsWritten != nil {
		stagedRowsWritten.Add(float64(count))
	}
}

// ObserveStagingExport records export latency and result.
func ObserveStagingExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if stagingExportTotal != nil {
		stagingExportTotal.WithLabelValues(format, result).Inc()
	}
	if stagingExportLatency != nil {
		stagingExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
)
