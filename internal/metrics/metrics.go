// Package metrics exposes Prometheus collectors for funnel activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "funnel"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	sinkWrites       *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	signals          *prometheus.CounterVec
	intakeSteps      *prometheus.CounterVec
}

// MustNew registers the collectors with reg and panics on conflicts.
// Tests should pass a fresh prometheus.NewRegistry().
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook deliveries by provider, event and outcome.",
		}, []string{"provider", "event", "outcome"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "questionnaire",
			Name:      "sink_writes_total",
			Help:      "Questionnaire fan-out writes by sink and outcome.",
		}, []string{"sink", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to external providers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "operations_total",
			Help:      "Completion-signal records and polls.",
		}, []string{"op", "result"}),
		intakeSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "steps_total",
			Help:      "Intake steps by step name and outcome.",
		}, []string{"step", "outcome"}),
	}
	reg.MustRegister(m.webhookEvents, m.sinkWrites, m.upstreamDuration, m.signals, m.intakeSteps)
	return m
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) WebhookEvent(provider, event, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, event, result).Inc()
}

func (m *Metrics) SinkWrite(sink string, ok bool) {
	if m == nil {
		return
	}
	m.sinkWrites.WithLabelValues(sink, outcome(ok)).Inc()
}

// ObserveUpstream implements upstream.Observer.
func (m *Metrics) ObserveUpstream(service string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(service, outcome(ok)).Observe(d.Seconds())
}

func (m *Metrics) Signal(op, result string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(op, result).Inc()
}

func (m *Metrics) IntakeStep(step string, ok bool) {
	if m == nil {
		return
	}
	m.intakeSteps.WithLabelValues(step, outcome(ok)).Inc()
}
