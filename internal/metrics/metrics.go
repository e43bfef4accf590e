// Package metrics exposes Prometheus collectors for jobs, worker processes,
// pipeline chunks, backend calls and event streams.
//
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	jobTransitions   *prometheus.CounterVec
	runningProcesses *prometheus.GaugeVec
	processExits     *prometheus.CounterVec
	chunks           *prometheus.CounterVec
	chunkDuration    prometheus.Histogram
	backendLatency   *prometheus.HistogramVec
	backendErrors    *prometheus.CounterVec
	backendTokens    *prometheus.CounterVec
	backendCost      prometheus.Counter
	pipelineRuns     *prometheus.CounterVec
	streamClients    prometheus.Gauge
	streamDropped    prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_job_transitions_total",
				Help: "Job status transitions by kind and target status",
			},
			[]string{"kind", "status"},
		),
		runningProcesses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "narrator_worker_processes_running",
				Help: "Worker processes currently running",
			},
			[]string{"kind"},
		),
		processExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_worker_process_exits_total",
				Help: "Worker process exits by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_pipeline_chunks_total",
				Help: "Pipeline chunk results by status (success, retry, failed)",
			},
			[]string{"status"},
		),
		chunkDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "narrator_pipeline_chunk_duration_seconds",
				Help:    "Wall-clock time spent on one chunk including retries",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		backendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "narrator_backend_request_duration_seconds",
				Help:    "Transform backend call latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"backend", "stage"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_backend_errors_total",
				Help: "Failed transform backend calls",
			},
			[]string{"backend", "stage"},
		),
		backendTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_backend_tokens_total",
				Help: "Tokens consumed by transform backends",
			},
			[]string{"backend", "direction"}, // "input", "output"
		),
		backendCost: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "narrator_backend_cost_total",
				Help: "Estimated backend cost in account currency",
			},
		),
		pipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_pipeline_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		streamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "narrator_event_stream_clients",
				Help: "Connected event stream clients",
			},
		),
		streamDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "narrator_event_stream_dropped_total",
				Help: "Events dropped because a stream client was too slow",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobTransitions,
		m.runningProcesses,
		m.processExits,
		m.chunks,
		m.chunkDuration,
		m.backendLatency,
		m.backendErrors,
		m.backendTokens,
		m.backendCost,
		m.pipelineRuns,
		m.streamClients,
		m.streamDropped,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobTransition(kind, status string) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ProcessStarted(kind string) {
	if m == nil {
		return
	}
	m.runningProcesses.WithLabelValues(kind).Inc()
}

// ProcessExited records a worker exit. outcome is one of completed, failed,
// cancelled or launch_error.
func (m *Metrics) ProcessExited(kind, outcome string, started bool) {
	if m == nil {
		return
	}
	if started {
		m.runningProcesses.WithLabelValues(kind).Dec()
	}
	m.processExits.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ChunkResult(status string) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(status).Inc()
}

func (m *Metrics) ChunkDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.chunkDuration.Observe(d.Seconds())
}

func (m *Metrics) BackendCall(backend, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(backend, stage).Observe(d.Seconds())
	if err != nil {
		m.backendErrors.WithLabelValues(backend, stage).Inc()
	}
}

func (m *Metrics) BackendUsage(backend string, inputTokens, outputTokens int, cost float64) {
	if m == nil {
		return
	}
	m.backendTokens.WithLabelValues(backend, "input").Add(float64(inputTokens))
	m.backendTokens.WithLabelValues(backend, "output").Add(float64(outputTokens))
	if cost > 0 {
		m.backendCost.Add(cost)
	}
}

func (m *Metrics) PipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StreamClient(delta int) {
	if m == nil {
		return
	}
	m.streamClients.Add(float64(delta))
}

func (m *Metrics) StreamDropped() {
	if m == nil {
		return
	}
	m.streamDropped.Inc()
}
