// Package metrics exposes Prometheus metrics for the table store and the HTTP
// API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/maruel/jsondb/internal/tablestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jsondb"

// Metrics holds the collectors on a private registry. It implements
// tablestore.Observer.
type Metrics struct {
	registry *prometheus.Registry

	loads          *prometheus.CounterVec
	recordsLoaded  prometheus.Gauge
	mutations      *prometheus.CounterVec
	saves          *prometheus.CounterVec
	saveDuration   prometheus.Histogram
	lastSaveBytes  prometheus.Gauge
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New creates the collectors. When withRuntime is set, the Go runtime and
// process collectors are registered too.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "loads_total",
				Help:      "Total number of data file loads",
			},
			[]string{"result"},
		),
		recordsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "records_loaded",
				Help:      "Number of records read from the data file at startup",
			},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "mutations_total",
				Help:      "Total number of applied mutations",
			},
			[]string{"op", "table"},
		),
		saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "saves_total",
				Help:      "Total number of data file writes",
			},
			[]string{"result"},
		),
		saveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "save_duration_seconds",
				Help:      "Duration of data file writes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
		),
		lastSaveBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "last_save_bytes",
				Help:      "Size of the last successful data file write",
			},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	m.registry.MustRegister(
		m.loads,
		m.recordsLoaded,
		m.mutations,
		m.saves,
		m.saveDuration,
		m.lastSaveBytes,
		m.requests,
		m.requestLatency,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to bound label cardinality.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// OnLoad implements tablestore.Observer.
func (m *Metrics) OnLoad(_, records int, err error) {
	m.loads.WithLabelValues(result(err)).Inc()
	m.recordsLoaded.Set(float64(records))
}

// OnMutation implements tablestore.Observer.
func (m *Metrics) OnMutation(op tablestore.Op, table string) {
	m.mutations.WithLabelValues(string(op), table).Inc()
}

// OnSave implements tablestore.Observer.
func (m *Metrics) OnSave(bytes int, d time.Duration, err error) {
	m.saves.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	m.saveDuration.Observe(d.Seconds())
	m.lastSaveBytes.Set(float64(bytes))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
