// Package metrics holds the Prometheus instruments of the locker backend.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "locker"

// Dispatch outcomes.
const (
	OutcomeSent            = "sent"
	OutcomeInvalidDuration = "invalid_duration"
	OutcomeInvalidLocker   = "invalid_locker"
	OutcomeUnavailable     = "unavailable"
	OutcomeError           = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	messagesIngested *prometheus.CounterVec // by kind
	appendFailures   prometheus.Counter
	stateUpserts     prometheus.Counter
	stateFailures    prometheus.Counter
	degradedFields   prometheus.Counter // telemetry whose payload gave no door/relay object
	ingestLag        prometheus.Histogram

	dispatches *prometheus.CounterVec // by outcome

	sessionState *prometheus.GaugeVec // by session, value is the ConnState ordinal
}

// New creates the instruments on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Messages appended to the log, by kind",
		}, []string{"kind"}),
		appendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "append_failures_total",
			Help:      "Messages that could not be appended to the log",
		}),
		stateUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "state_upserts_total",
			Help:      "Locker state projections written",
		}),
		stateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "state_failures_total",
			Help:      "Locker state projections that failed to write",
		}),
		degradedFields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "telemetry_unparsed_total",
			Help:      "Telemetry payloads that were not a JSON object",
		}),
		ingestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "handle_seconds",
			Help:      "Time from receipt to durable append",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "dispatch_total",
			Help:      "Unlock dispatch attempts, by outcome",
		}, []string{"outcome"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "session_state",
			Help:      "Session state (0=disconnected, 1=connecting, 2=connected, 3=subscribed, 4=receiving)",
		}, []string{"session"}),
	}

	reg.MustRegister(
		m.messagesIngested, m.appendFailures, m.stateUpserts, m.stateFailures,
		m.degradedFields, m.ingestLag, m.dispatches, m.sessionState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MessageIngested(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.messagesIngested.WithLabelValues(kind).Inc()
	m.ingestLag.Observe(seconds)
}

func (m *Metrics) AppendFailed() {
	if m == nil {
		return
	}
	m.appendFailures.Inc()
}

func (m *Metrics) StateUpserted() {
	if m == nil {
		return
	}
	m.stateUpserts.Inc()
}

func (m *Metrics) StateFailed() {
	if m == nil {
		return
	}
	m.stateFailures.Inc()
}

func (m *Metrics) TelemetryUnparsed() {
	if m == nil {
		return
	}
	m.degradedFields.Inc()
}

func (m *Metrics) Dispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}

// SessionState returns an observer suitable for transport.Session.OnStateChange.
func (m *Metrics) SessionState(session string) func(state int) {
	return func(state int) {
		if m == nil {
			return
		}
		m.sessionState.WithLabelValues(session).Set(float64(state))
	}
}
