// Package metrics exposes engine counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CredTree/internal/ledger"
)

// Namespace prefixes every metric name.
const Namespace = "credtree"

// Metrics holds the collectors of one node. Each instance owns its registry
// so several nodes can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	commands *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
	entities prometheus.Gauge
	sequence prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: newCounterVec("engine", "commands_total", "Number of executed commands.", "op", "result"),
		latency:  newHistogramVec("engine", "command_seconds", "Time spent executing a command.", "op"),
		events:   newCounterVec("ledger", "events_total", "Number of emitted domain events.", "kind"),
		entities: newGauge("directory", "entities", "Number of hosted entities."),
		sequence: newGauge("engine", "sequence", "Last issued sequence value."),
	}

	m.registry.MustRegister(m.commands, m.latency, m.events, m.entities, m.sequence)

	return m
}

// ObserveCommand records one command execution.
func (m *Metrics) ObserveCommand(op, result string, elapsed time.Duration) {
	m.commands.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetEntities records the number of hosted entities.
func (m *Metrics) SetEntities(n int) {
	m.entities.Set(float64(n))
}

// SetSequence records the last issued sequence value.
func (m *Metrics) SetSequence(seq uint64) {
	m.sequence.Set(float64(seq))
}

// Emit counts a domain event. Metrics is a ledger.Emitter.
func (m *Metrics) Emit(ev ledger.Event) {
	m.events.WithLabelValues(ev.Kind.String()).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newHistogramVec(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, labels)
}
