package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the occupancy loop. A nil
// *Metrics is valid and records nothing, so packages can take it optionally.
type Metrics struct {
	registry *prometheus.Registry

	cycles            prometheus.Counter
	detections        prometheus.Counter
	transitions       *prometheus.CounterVec
	sessionsRecorded  prometheus.Counter
	sessionsFiltered  prometheus.Counter
	sessionsDropped   prometheus.Counter
	sinkErrors        prometheus.Counter
	publishErrors     prometheus.Counter
	skippedLines      prometheus.Counter
	spacesFree        prometheus.Gauge
	spacesOccupied    prometheus.Gauge
	sessionDurationMn prometheus.Histogram
}

// NewMetrics creates a Metrics instance on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_cycles_total",
			Help: "Occupancy cycles completed",
		}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_detections_total",
			Help: "Detections received from the detector",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_transitions_total",
			Help: "Space state transitions by target state",
		}, []string{"to"}),
		sessionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_sessions_recorded_total",
			Help: "Sessions appended to the sink",
		}),
		sessionsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_sessions_filtered_total",
			Help: "Sessions suppressed by the minimum duration filter",
		}),
		sessionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_sessions_dropped_total",
			Help: "Sessions dropped because the async queue was full",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_session_sink_errors_total",
			Help: "Failed session appends",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_status_publish_errors_total",
			Help: "Failed status snapshot publishes",
		}),
		skippedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_detector_skipped_lines_total",
			Help: "Detector lines that could not be decoded",
		}),
		spacesFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parking_spaces_free",
			Help: "Free spaces after the last cycle",
		}),
		spacesOccupied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parking_spaces_occupied",
			Help: "Occupied spaces after the last cycle",
		}),
		sessionDurationMn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parking_session_duration_minutes",
			Help:    "Duration of recorded sessions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 480, 1440},
		}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.detections,
		m.transitions,
		m.sessionsRecorded,
		m.sessionsFiltered,
		m.sessionsDropped,
		m.sinkErrors,
		m.publishErrors,
		m.skippedLines,
		m.spacesFree,
		m.spacesOccupied,
		m.sessionDurationMn,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records one completed cycle and the resulting counts.
func (m *Metrics) ObserveCycle(detections, free, occupied int) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.detections.Add(float64(detections))
	m.spacesFree.Set(float64(free))
	m.spacesOccupied.Set(float64(occupied))
}

// ObserveTransition counts a state change into the named state.
func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// SessionRecorded counts a persisted session and its duration.
func (m *Metrics) SessionRecorded(durationMinutes float64) {
	if m == nil {
		return
	}
	m.sessionsRecorded.Inc()
	m.sessionDurationMn.Observe(durationMinutes)
}

// SessionFiltered counts a session below the minimum duration.
func (m *Metrics) SessionFiltered() {
	if m == nil {
		return
	}
	m.sessionsFiltered.Inc()
}

// SessionDropped counts a session lost to a full queue.
func (m *Metrics) SessionDropped() {
	if m == nil {
		return
	}
	m.sessionsDropped.Inc()
}

// SinkError counts a failed session append.
func (m *Metrics) SinkError() {
	if m == nil {
		return
	}
	m.sinkErrors.Inc()
}

// PublishError counts a failed snapshot publish.
func (m *Metrics) PublishError() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}

// SkippedLine counts an undecodable detector line.
func (m *Metrics) SkippedLine() {
	if m == nil {
		return
	}
	m.skippedLines.Inc()
}
