// Package rtmetrics exposes the runtime's Prometheus collectors: event
// throughput, turn lifecycle counts, debounce coalescing, and registry
// size. The core runtime never opens an HTTP listener itself (an
// HTTP gateway is an out-of-scope external collaborator); it only
// exposes the registry and a ready-to-mount handler.
package rtmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the runtime updates. A nil *Metrics is
// valid everywhere it is used: every increment method is a no-op on a
// nil receiver, so wiring metrics is always optional for callers.
type Metrics struct {
	registry *prometheus.Registry

	eventsAppended    prometheus.Counter
	turnStarted       prometheus.Counter
	turnCompleted     prometheus.Counter
	turnFailed        prometheus.Counter
	turnInterrupted   prometheus.Counter
	debounceCoalesced prometheus.Counter
	registrySize      prometheus.Gauge
}

// New constructs a Metrics bundle with its own Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		eventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniagent",
			Name:      "events_appended_total",
			Help:      "Number of events durably appended to conversation logs.",
		}),
		turnStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniagent",
			Name:      "turns_started_total",
			Help:      "Number of turns started.",
		}),
		turnCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniagent",
			Name:      "turns_completed_total",
			Help:      "Number of turns completed successfully.",
		}),
		turnFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniagent",
			Name:      "turns_failed_total",
			Help:      "Number of turns that ended in TurnFailed.",
		}),
		turnInterrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniagent",
			Name:      "turns_interrupted_total",
			Help:      "Number of turns cancelled by a new triggering event or explicit interrupt.",
		}),
		debounceCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "miniagent",
			Name:      "debounce_coalesced_total",
			Help:      "Number of triggering events absorbed by an already-armed debounce window.",
		}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "miniagent",
			Name:      "registry_sessions",
			Help:      "Number of sessions currently held by the registry.",
		}),
	}

	reg.MustRegister(
		m.eventsAppended,
		m.turnStarted,
		m.turnCompleted,
		m.turnFailed,
		m.turnInterrupted,
		m.debounceCoalesced,
		m.registrySize,
	)
	return m
}

// Registry returns the underlying Prometheus registry so a gateway can
// mount it alongside its own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving this registry's metrics in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) IncEventsAppended() {
	if m == nil {
		return
	}
	m.eventsAppended.Inc()
}

func (m *Metrics) IncTurnStarted() {
	if m == nil {
		return
	}
	m.turnStarted.Inc()
}

func (m *Metrics) IncTurnCompleted() {
	if m == nil {
		return
	}
	m.turnCompleted.Inc()
}

func (m *Metrics) IncTurnFailed() {
	if m == nil {
		return
	}
	m.turnFailed.Inc()
}

func (m *Metrics) IncTurnInterrupted() {
	if m == nil {
		return
	}
	m.turnInterrupted.Inc()
}

func (m *Metrics) IncDebounceCoalesced() {
	if m == nil {
		return
	}
	m.debounceCoalesced.Inc()
}

func (m *Metrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(n))
}
