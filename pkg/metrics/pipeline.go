package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records metadata for report pipeline runs.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	success       *prometheus.CounterVec
	failure       *prometheus.CounterVec
	rowsLoaded    *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pipeline", "stage"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_run_success",
		Help: "Successful pipeline runs.",
	}, []string{"pipeline"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_run_failure",
		Help: "Failed pipeline runs.",
	}, []string{"pipeline"})
	rowsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_rows_loaded_total",
		Help: "Rows loaded into the warehouse per table.",
	}, []string{"table"})
	reg.MustRegister(stageDuration, success, failure, rowsLoaded)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		success:       success,
		failure:       failure,
		rowsLoaded:    rowsLoaded,
	}
}

// ObserveStage records the duration for the named stage of a pipeline.
func (p *PipelineMetrics) ObserveStage(pipeline, stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(pipeline), normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named pipeline.
func (p *PipelineMetrics) IncSuccess(pipeline string) {
	if p == nil || p.success == nil {
		return
	}
	p.success.WithLabelValues(normalizeLabel(pipeline)).Inc()
}

// IncFailure increments the failure counter for the named pipeline.
func (p *PipelineMetrics) IncFailure(pipeline string) {
	if p == nil || p.failure == nil {
		return
	}
	p.failure.WithLabelValues(normalizeLabel(pipeline)).Inc()
}

// AddRowsLoaded adds the count of rows loaded into the given table.
func (p *PipelineMetrics) AddRowsLoaded(table string, rows int64) {
	if p == nil || p.rowsLoaded == nil {
		return
	}
	if rows < 0 {
		return
	}
	p.rowsLoaded.WithLabelValues(normalizeLabel(table)).Add(float64(rows))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
