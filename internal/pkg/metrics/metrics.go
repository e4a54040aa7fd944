package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "policetracker",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "policetracker",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Map view sync metrics
	SyncFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "sync",
		Name:      "fetches_total",
		Help:      "Viewport fetches issued by map view engines, by outcome",
	}, []string{"outcome"})

	SyncSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "sync",
		Name:      "skips_total",
		Help:      "Viewport changes answered without a fetch, by reason",
	}, []string{"reason"})

	SyncFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "policetracker",
		Subsystem: "sync",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of viewport fetches",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	SyncRenderSetSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "policetracker",
		Subsystem: "sync",
		Name:      "render_set_size",
		Help:      "Number of markers pushed to a renderer",
		Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000},
	})

	SyncCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "sync",
		Name:      "cache_evictions_total",
		Help:      "Cached alerts evicted as stale or outside the fetched area",
	})

	SyncMalformedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "sync",
		Name:      "malformed_dropped_total",
		Help:      "Fetched alerts dropped for a missing id or unusable coordinates",
	})

	// Ingestion metrics
	AlertsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "ingest",
		Name:      "alerts_imported_total",
		Help:      "Alerts written by importers",
	}, []string{"source"})

	AlertsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "ingest",
		Name:      "alerts_pruned_total",
		Help:      "Alerts deleted by the retention job",
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "upstream",
		Name:      "errors_total",
		Help:      "Failed calls to the upstream alerts API",
	}, []string{"operation"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "policetracker",
		Subsystem: "ws",
		Name:      "active_sessions",
		Help:      "Map view sessions currently attached over WebSocket",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policetracker",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "policetracker",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "policetracker",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "policetracker",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics copies pgx pool statistics into the db gauges.
func UpdateDBPoolMetrics(stat interface{}) {
	// keeps pgxpool out of this package
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
