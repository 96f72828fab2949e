// Package metrics exposes Prometheus metrics for simulations and the HTTP API.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Simulations         *prometheus.CounterVec
	SimulationDurations *prometheus.HistogramVec
	GuardTrials         prometheus.Counter
	PathSearches        prometheus.Counter

	GraphNodes prometheus.Gauge
	GraphEdges prometheus.Gauge
}

// New registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice on the same registry
// reuses the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route and status code.",
	}, []string{"route", "code"}), "guard_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guard_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"route"}), "guard_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	simulations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_simulations_total",
		Help: "Total number of guard-count simulations, labeled by outcome.",
	}, []string{"outcome"}), "guard_simulations_total")
	if err != nil {
		return nil, err
	}

	simDurations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guard_simulation_duration_seconds",
		Help:    "Guard-count search duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
	}, []string{"outcome"}), "guard_simulation_duration_seconds")
	if err != nil {
		return nil, err
	}

	trials, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guard_trials_total",
		Help: "Total number of guard counts evaluated.",
	}), "guard_trials_total")
	if err != nil {
		return nil, err
	}

	searches, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guard_path_searches_total",
		Help: "Total number of single-source shortest path searches.",
	}), "guard_path_searches_total")
	if err != nil {
		return nil, err
	}

	nodes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guard_graph_nodes",
		Help: "Number of nodes in the loaded road graph.",
	}), "guard_graph_nodes")
	if err != nil {
		return nil, err
	}

	edges, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guard_graph_edges",
		Help: "Number of edges in the loaded road graph.",
	}), "guard_graph_edges")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		HTTPRequests:        requests,
		HTTPDurations:       durations,
		Simulations:         simulations,
		SimulationDurations: simDurations,
		GuardTrials:         trials,
		PathSearches:        searches,
		GraphNodes:          nodes,
		GraphEdges:          edges,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSimulation records one finished search. A nil Collector is a no-op.
func (c *Collector) ObserveSimulation(outcome string, dur time.Duration, trials, pathSearches int) {
	if c == nil {
		return
	}
	c.Simulations.WithLabelValues(outcome).Inc()
	c.SimulationDurations.WithLabelValues(outcome).Observe(dur.Seconds())
	c.GuardTrials.Add(float64(trials))
	c.PathSearches.Add(float64(pathSearches))
}

// SetGraphSize records the size of the loaded road graph.
func (c *Collector) SetGraphSize(nodes, edges uint32) {
	if c == nil {
		return
	}
	c.GraphNodes.Set(float64(nodes))
	c.GraphEdges.Set(float64(edges))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Middleware counts requests to route and observes their latency.
func (c *Collector) Middleware(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// register registers col, returning the already registered collector of
// the same type if there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
