package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the slide sync service.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	displayChangesTotal   *prometheus.CounterVec
	deckLoadsTotal        *prometheus.CounterVec
	recognitionTotal      *prometheus.CounterVec
	playbackCompleteTotal prometheus.Counter
	activeSessions        prometheus.Gauge
	staleSessions         prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slidesync_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slidesync_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		displayChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slidesync_display_changes_total",
			Help: "Visible slide changes by reason (time, voice, manual, auto)",
		}, []string{"reason"}),
		deckLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slidesync_deck_loads_total",
			Help: "Deck loads by result (ok, error)",
		}, []string{"result"}),
		recognitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slidesync_recognition_results_total",
			Help: "Speech results by outcome (matched, unmatched, rejected)",
		}, []string{"outcome"}),
		playbackCompleteTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slidesync_playback_complete_total",
			Help: "Times playback reached the end of a deck",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slidesync_active_sessions",
			Help: "Number of live engine sessions",
		}),
		staleSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slidesync_stale_sessions",
			Help: "Sessions whose sync timer runs on a stale playback time",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.displayChangesTotal,
		m.deckLoadsTotal,
		m.recognitionTotal,
		m.playbackCompleteTotal,
		m.activeSessions,
		m.staleSessions,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncDisplayChange counts a display change for reason.
func (m *Metrics) IncDisplayChange(reason string) {
	m.displayChangesTotal.WithLabelValues(reason).Inc()
}

// IncDeckLoad counts a finished deck load; result is "ok" or "error".
func (m *Metrics) IncDeckLoad(result string) {
	m.deckLoadsTotal.WithLabelValues(result).Inc()
}

// IncRecognition counts a speech result by outcome.
func (m *Metrics) IncRecognition(outcome string) {
	m.recognitionTotal.WithLabelValues(outcome).Inc()
}

// IncPlaybackComplete counts a PLAYBACK_COMPLETE.
func (m *Metrics) IncPlaybackComplete() {
	m.playbackCompleteTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// SetStaleSessions sets the stale sessions gauge.
func (m *Metrics) SetStaleSessions(n int) {
	m.staleSessions.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
