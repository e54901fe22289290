package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame directions
const (
	DirectionToModel  = "to_model"
	DirectionToCaller = "to_caller"
)

// Legs of a call session
const (
	LegDownstream = "downstream"
	LegUpstream   = "upstream"
)

// Metrics contains all Prometheus metrics for the voice bridge
type Metrics struct {
	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  *prometheus.CounterVec
	SessionsClosed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	SessionsRejected *prometheus.CounterVec

	// Upstream connection metrics
	UpstreamConnectDuration prometheus.Histogram
	UpstreamConnectFailures prometheus.Counter

	// Frame metrics
	FramesRelayed   *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	MalformedFrames *prometheus.CounterVec
	MarksSent       prometheus.Counter
	ServerErrors    prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voicebridge_active_sessions",
			Help: "Current number of bridged call sessions",
		}),
		SessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_sessions_created_total",
			Help: "Total number of call sessions accepted",
		}, []string{"persona"}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_sessions_closed_total",
			Help: "Total number of call sessions closed",
		}, []string{"reason"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebridge_session_duration_seconds",
			Help:    "Duration of call sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		SessionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_sessions_rejected_total",
			Help: "Total number of upgrade requests rejected before a session was created",
		}, []string{"reason"}),

		// Upstream connection metrics
		UpstreamConnectDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicebridge_upstream_connect_duration_seconds",
			Help:    "Time to establish the realtime model connection",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		UpstreamConnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_upstream_connect_failures_total",
			Help: "Total number of failed realtime model connections",
		}),

		// Frame metrics
		FramesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_frames_relayed_total",
			Help: "Total number of audio frames relayed",
		}, []string{"direction"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_frames_dropped_total",
			Help: "Total number of audio frames dropped",
		}, []string{"reason"}),
		MalformedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_malformed_frames_total",
			Help: "Total number of inbound frames that failed to decode",
		}, []string{"leg"}),
		MarksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_marks_sent_total",
			Help: "Total number of response completion marks sent to callers",
		}),
		ServerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicebridge_model_errors_total",
			Help: "Total number of error events reported by the realtime model",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicebridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicebridge_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSessionCreated increments the created counter and the active gauge
func (m *Metrics) RecordSessionCreated(persona string) {
	m.SessionsCreated.WithLabelValues(persona).Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionClosed decrements the active gauge and records duration
func (m *Metrics) RecordSessionClosed(reason string, durationSeconds float64) {
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionRejected records an upgrade refused before session creation
func (m *Metrics) RecordSessionRejected(reason string) {
	m.SessionsRejected.WithLabelValues(reason).Inc()
}

// RecordUpstreamConnect records a realtime dial attempt
func (m *Metrics) RecordUpstreamConnect(durationSeconds float64, err error) {
	m.UpstreamConnectDuration.Observe(durationSeconds)
	if err != nil {
		m.UpstreamConnectFailures.Inc()
	}
}

// RecordFrameRelayed increments the relayed counter for a direction
func (m *Metrics) RecordFrameRelayed(direction string) {
	m.FramesRelayed.WithLabelValues(direction).Inc()
}

// RecordFrameDropped increments the dropped counter for a reason
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordMalformedFrame increments the malformed counter for a leg
func (m *Metrics) RecordMalformedFrame(leg string) {
	m.MalformedFrames.WithLabelValues(leg).Inc()
}

// RecordMarkSent increments the marks counter
func (m *Metrics) RecordMarkSent() {
	m.MarksSent.Inc()
}

// RecordServerError increments the model error counter
func (m *Metrics) RecordServerError() {
	m.ServerErrors.Inc()
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
