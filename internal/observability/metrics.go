package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments for session generation. All
// recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	Turns               *prometheus.CounterVec
	CompletionFallbacks *prometheus.CounterVec
	SynthesisFallbacks  prometheus.Counter
	Sessions            *prometheus.CounterVec
	SessionDuration     prometheus.Histogram
	AudioSeconds        prometheus.Histogram
	ActiveJobs          prometheus.Gauge
}

// NewMetrics registers the instruments on a private registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by persona and state.",
		}, []string{"persona", "state"}),
		CompletionFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_fallbacks_total",
			Help:      "Model completion fallback tiers entered.",
		}, []string{"tier"}),
		SynthesisFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_fallbacks_total",
			Help:      "Turns re-rendered from plain text after markup synthesis failed.",
		}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		}, []string{"outcome"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time to generate a session.",
			Buckets:   []float64{10, 30, 60, 120, 240, 480, 900},
		}),
		AudioSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_seconds",
			Help:      "Length of generated episodes.",
			Buckets:   []float64{30, 60, 120, 240, 480, 900},
		}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Session jobs currently running.",
		}),
	}
}

func (m *Metrics) TurnCompleted(persona, state string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(persona, state).Inc()
}

func (m *Metrics) CompletionFallback(tier string) {
	if m == nil {
		return
	}
	m.CompletionFallbacks.WithLabelValues(tier).Inc()
}

func (m *Metrics) SynthesisFallback() {
	if m == nil {
		return
	}
	m.SynthesisFallbacks.Inc()
}

// SessionFinished records the outcome of one session. audioSeconds is
// ignored unless the session succeeded.
func (m *Metrics) SessionFinished(outcome string, elapsed time.Duration, audioSeconds float64) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(elapsed.Seconds())
	if outcome == "success" {
		m.AudioSeconds.Observe(audioSeconds)
	}
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
