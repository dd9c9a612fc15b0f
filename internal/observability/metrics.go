// Package observability provides logging and Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageRows         *prometheus.GaugeVec
	EntitiesByType    *prometheus.GaugeVec

	// Input metrics
	LedgerRows *prometheus.GaugeVec

	// Output metrics
	RowsWritten   *prometheus.CounterVec
	SinkErrors    *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "entity_cluster_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		StageRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_rows",
			Help:      "Rows produced by the last run of each stage",
		}, []string{"stage"}),
		EntitiesByType: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "entities",
			Help:      "Entities per classification label in the last run",
		}, []string{"entity_type"}),

		LedgerRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rows",
			Help:      "Rows loaded per input relation",
		}, []string{"relation"}),

		RowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "rows_written_total",
			Help:      "Total rows written per output target",
		}, []string{"target"}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "errors_total",
			Help:      "Total output failures per target",
		}, []string{"target"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "write_duration_seconds",
			Help:      "Output write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordStage records the duration and row count of one pipeline stage.
func (m *Metrics) RecordStage(stage string, seconds float64, rows int) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
	m.StageRows.WithLabelValues(stage).Set(float64(rows))
}

// RecordWrite records an output write.
func (m *Metrics) RecordWrite(target string, seconds float64, rows int, err error) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(target).Observe(seconds)
	if err != nil {
		m.SinkErrors.WithLabelValues(target).Inc()
		return
	}
	m.RowsWritten.WithLabelValues(target).Add(float64(rows))
}

// RecordRun records the outcome of a pipeline run.
func (m *Metrics) RecordRun(status string, unixSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.LastSuccessfulRun.Set(unixSeconds)
	}
}
