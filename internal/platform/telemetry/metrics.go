// Package telemetry exposes Prometheus metrics for the stores, listeners and
// protocol services, and serves them with a health report on the ops
// endpoint.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carecircle"

// Metrics owns a private registry. It satisfies the observer interfaces of
// filestore, netserver, records and chat.
type Metrics struct {
	registry *prometheus.Registry

	storeOps      *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
	connsActive   *prometheus.GaugeVec
	connsTotal    *prometheus.CounterVec
	connDuration  *prometheus.HistogramVec
	commands      *prometheus.CounterVec
	commandTime   *prometheus.HistogramVec
	broadcasts    *prometheus.CounterVec
	writeFailures prometheus.Counter
	opsPanics     *prometheus.CounterVec
}

// NewMetrics registers the collectors, plus the Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		storeOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of record file operations.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"store", "op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Record file operations that failed.",
		}, []string{"store", "op"}),
		connsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "connections_active",
			Help:      "Connections currently open.",
		}, []string{"server"}),
		connsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "connections_total",
			Help:      "Connections accepted.",
		}, []string{"server"}),
		connDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "connection_duration_seconds",
			Help:      "Lifetime of closed connections.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"server"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "commands_total",
			Help:      "Record protocol commands by outcome.",
		}, []string{"command", "outcome"}),
		commandTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "command_duration_seconds",
			Help:      "Time to answer a record protocol command.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "broadcasts_total",
			Help:      "Chat fan-outs by kind.",
		}, []string{"kind"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "write_failures_total",
			Help:      "Chat deliveries that failed and were skipped.",
		}),
		opsPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ops",
			Name:      "panics_total",
			Help:      "Ops handler panics recovered, by route.",
		}, []string{"route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.storeOps, m.storeErrors,
		m.connsActive, m.connsTotal, m.connDuration,
		m.commands, m.commandTime,
		m.broadcasts, m.writeFailures,
		m.opsPanics,
	)
	return m
}

// Registry returns the registry metrics are exposed from.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(subsystem, name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveStoreOp(store, op string, elapsed time.Duration, err error) {
	m.storeOps.WithLabelValues(store, op).Observe(elapsed.Seconds())
	if err != nil {
		m.storeErrors.WithLabelValues(store, op).Inc()
	}
}

func (m *Metrics) ConnOpened(server string) {
	m.connsTotal.WithLabelValues(server).Inc()
	m.connsActive.WithLabelValues(server).Inc()
}

func (m *Metrics) ConnClosed(server string, elapsed time.Duration) {
	m.connsActive.WithLabelValues(server).Dec()
	m.connDuration.WithLabelValues(server).Observe(elapsed.Seconds())
}

func (m *Metrics) Command(cmd string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(cmd, outcome).Inc()
	m.commandTime.WithLabelValues(cmd).Observe(elapsed.Seconds())
}

func (m *Metrics) Broadcast(kind string, _, failed int) {
	m.broadcasts.WithLabelValues(kind).Inc()
	if failed > 0 {
		m.writeFailures.Add(float64(failed))
	}
}

func (m *Metrics) OpsPanic(route string) {
	m.opsPanics.WithLabelValues(route).Inc()
}
