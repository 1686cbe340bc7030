package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the formant service
type Metrics struct {
	// Pipeline metrics
	ChunksReceived     prometheus.Counter
	ChunksEmitted      prometheus.Counter
	ChunksDropped      *prometheus.CounterVec
	UnexpectedErrors   *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsDestroyed prometheus.Counter
	SessionDuration   prometheus.Histogram
	InboxOverflows    prometheus.Counter

	// Transport metrics
	FramesReceived *prometheus.CounterVec
	FrameErrors    *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		ChunksEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_chunks_emitted_total",
			Help: "Total number of chunks that produced a formant pair",
		}),
		ChunksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_chunks_dropped_total",
			Help: "Total number of chunks dropped without emission",
		}, []string{"reason"}),
		UnexpectedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_unexpected_errors_total",
			Help: "Total number of unexpected processing failures",
		}, []string{"suppressed"}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kotoba_chunk_processing_duration_seconds",
			Help:    "Time spent processing one chunk end to end",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kotoba_active_sessions",
			Help: "Current number of streaming sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsDestroyed: factory.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_sessions_destroyed_total",
			Help: "Total number of sessions destroyed",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kotoba_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		InboxOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "kotoba_inbox_overflows_total",
			Help: "Total number of chunks discarded because a session inbox was full",
		}),

		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_frames_received_total",
			Help: "Total number of streaming frames received",
		}, []string{"encoding", "event"}),
		FrameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_frame_errors_total",
			Help: "Total number of streaming frames that could not be handled",
		}, []string{"error_type"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kotoba_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kotoba_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkReceived increments the chunks received counter
func (m *Metrics) RecordChunkReceived() {
	m.ChunksReceived.Inc()
}

// RecordChunkEmitted increments the chunks emitted counter
func (m *Metrics) RecordChunkEmitted() {
	m.ChunksEmitted.Inc()
}

// RecordChunkDropped increments the drop counter for reason
func (m *Metrics) RecordChunkDropped(reason string) {
	m.ChunksDropped.WithLabelValues(reason).Inc()
}

// RecordUnexpectedError counts a failure outside the expected drop reasons
func (m *Metrics) RecordUnexpectedError(suppressed bool) {
	label := "false"
	if suppressed {
		label = "true"
	}
	m.UnexpectedErrors.WithLabelValues(label).Inc()
}

// RecordProcessing records how long a chunk took to process
func (m *Metrics) RecordProcessing(durationSeconds float64) {
	m.ExtractionDuration.Observe(durationSeconds)
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionDestroyed increments the sessions destroyed counter and records duration
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsDestroyed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordInboxOverflow counts a chunk discarded at a full inbox
func (m *Metrics) RecordInboxOverflow() {
	m.InboxOverflows.Inc()
}

// RecordFrame counts an inbound streaming frame
func (m *Metrics) RecordFrame(encoding, event string) {
	m.FramesReceived.WithLabelValues(encoding, event).Inc()
}

// RecordFrameError counts an inbound frame that could not be handled
func (m *Metrics) RecordFrameError(errorType string) {
	m.FrameErrors.WithLabelValues(errorType).Inc()
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
