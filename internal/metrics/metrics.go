package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
)

const namespace = "projectql"

// Metrics holds the Prometheus collectors fed from the event bus. Each
// Metrics owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operations_total",
			Help:      "GraphQL operations by type and result.",
		}, []string{"type", "result"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operation_duration_seconds",
			Help:      "GraphQL operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query_cache",
			Name:      "lookups_total",
			Help:      "Query cache lookups by result: hit, miss or invalid.",
		}, []string{"result"}),
	}
}

// Attach records the events published on bus.
func (m *Metrics) Attach(bus *eventbus.Bus) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.httpDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.GraphQLFinish) {
			result := "ok"
			if len(e.Errors) > 0 {
				result = "error"
			}
			m.operations.WithLabelValues(e.OperationType, result).Inc()
			m.operationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.On(bus, func(_ context.Context, e events.QueryCacheHit) {
			m.cacheLookups.WithLabelValues("hit").Inc()
		}),
		eventbus.On(bus, func(_ context.Context, e events.QueryCacheMiss) {
			result := "miss"
			if e.Err != nil {
				result = "invalid"
			}
			m.cacheLookups.WithLabelValues(result).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
