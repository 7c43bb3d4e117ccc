// Package metrics holds the Prometheus collectors for the bot. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coverbot"

type Metrics struct {
	SessionsStarted prometheus.Counter
	ActiveSessions  prometheus.Gauge
	Steps           *prometheus.CounterVec
	Completions     *prometheus.CounterVec
	LLMDuration     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Conversations that started a new cover letter session.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
		Steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Controller steps by step name and outcome.",
		}, []string{"step", "outcome"}),
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Sessions that reached their final cover letter, by reason.",
		}, []string{"reason"}),
		LLMDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Latency of LLM completions by template.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"template", "outcome"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionsEnded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ActiveSessions.Sub(float64(n))
}

func (m *Metrics) Step(step, outcome string) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(step, outcome).Inc()
}

func (m *Metrics) Completed(reason string) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLLM(template string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMDuration.WithLabelValues(template, outcome).Observe(d.Seconds())
}
