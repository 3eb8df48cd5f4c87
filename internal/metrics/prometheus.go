package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration results
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// Metrics contains all Prometheus metrics for the mixing service
type Metrics struct {
	// Source metrics
	ActiveSources   prometheus.Gauge
	Registrations   *prometheus.CounterVec
	Unregistrations prometheus.Counter
	SourcesFinished prometheus.Counter
	SourcesStalled  prometheus.Counter
	ChunksPublished prometheus.Counter

	// Scheduler metrics
	Cycles        prometheus.Counter
	CycleDuration prometheus.Histogram
	CycleSources  prometheus.Histogram
	CompositeSize prometheus.Histogram
	Overruns      prometheus.Counter
	PartialCycles prometheus.Counter
	SinkErrors    *prometheus.CounterVec

	// Control packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Source metrics
		ActiveSources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mixer_active_sources",
			Help: "Current number of sources in the active set",
		}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mixer_registrations_total",
			Help: "Total number of source registration attempts by result",
		}, []string{"result"}),
		Unregistrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_unregistrations_total",
			Help: "Total number of sources removed on request",
		}),
		SourcesFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_sources_finished_total",
			Help: "Total number of sources that played to the end",
		}),
		SourcesStalled: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_sources_stalled_total",
			Help: "Total number of sources dropped after missing the stall timeout",
		}),
		ChunksPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_chunks_published_total",
			Help: "Total number of chunks published by producers",
		}),

		// Scheduler metrics
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_cycles_total",
			Help: "Total number of composite chunks handed to the sink",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mixer_cycle_duration_seconds",
			Help:    "Time from cycle start until the composite chunk was handed off",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		}),
		CycleSources: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mixer_cycle_sources",
			Help:    "Number of sources mixed into each composite chunk",
			Buckets: prometheus.LinearBuckets(1, 1, 16),
		}),
		CompositeSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mixer_composite_size_bytes",
			Help:    "Size of composite chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),
		Overruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_overruns_total",
			Help: "Total number of cycles whose processing exceeded the chunk duration",
		}),
		PartialCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_partial_cycles_total",
			Help: "Total number of cycles mixed without every active source",
		}),
		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mixer_sink_errors_total",
			Help: "Total number of playback sink errors",
		}, []string{"operation"}),

		// Control packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_control_packets_received_total",
			Help: "Total number of UDP control packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_control_packets_processed_total",
			Help: "Total number of UDP control packets successfully processed",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixer_control_parse_errors_total",
			Help: "Total number of control packet parsing errors",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mixer_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mixer_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mixer_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSources sets the current number of active sources
func (m *Metrics) SetActiveSources(count int) {
	m.ActiveSources.Set(float64(count))
}

// RecordRegistration increments the registration counter for result
func (m *Metrics) RecordRegistration(result string) {
	m.Registrations.WithLabelValues(result).Inc()
}

// RecordUnregistration increments the unregistration counter
func (m *Metrics) RecordUnregistration() {
	m.Unregistrations.Inc()
}

// RecordSourceFinished increments the finished sources counter
func (m *Metrics) RecordSourceFinished() {
	m.SourcesFinished.Inc()
}

// RecordSourcesStalled adds n dropped sources
func (m *Metrics) RecordSourcesStalled(n int) {
	m.SourcesStalled.Add(float64(n))
}

// RecordChunkPublished increments the published chunks counter
func (m *Metrics) RecordChunkPublished() {
	m.ChunksPublished.Inc()
}

// RecordCycle records a completed mixing cycle
func (m *Metrics) RecordCycle(elapsedSeconds float64, sources, sizeBytes int, partial bool) {
	m.Cycles.Inc()
	m.CycleDuration.Observe(elapsedSeconds)
	m.CycleSources.Observe(float64(sources))
	m.CompositeSize.Observe(float64(sizeBytes))
	if partial {
		m.PartialCycles.Inc()
	}
}

// RecordOverrun increments the overrun counter
func (m *Metrics) RecordOverrun() {
	m.Overruns.Inc()
}

// RecordSinkError increments the sink error counter for operation
func (m *Metrics) RecordSinkError(operation string) {
	m.SinkErrors.WithLabelValues(operation).Inc()
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
