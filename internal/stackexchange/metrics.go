package stackexchange

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instruments for the request lifecycle.
// A nil *Metrics is valid and turns every record call into a no-op,
// so the client works without a registry.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	retriesTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	coalescedTotal  prometheus.Counter
	rateLimitEvents prometheus.Counter
}

// NewMetrics registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackmcp_requests_total",
				Help: "Total upstream API requests by endpoint and status code",
			},
			[]string{"endpoint", "status_code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stackmcp_request_duration_seconds",
				Help:    "Upstream request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "stackmcp_requests_in_flight",
				Help: "Upstream requests currently executing",
			},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackmcp_retries_total",
				Help: "Retry attempts by endpoint",
			},
			[]string{"endpoint"},
		),
		cacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stackmcp_cache_hits_total",
				Help: "Responses served from the cache",
			},
		),
		cacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stackmcp_cache_misses_total",
				Help: "Cache lookups that went upstream",
			},
		),
		coalescedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stackmcp_coalesced_requests_total",
				Help: "Requests attached to an identical in-flight call",
			},
		),
		rateLimitEvents: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "stackmcp_rate_limit_events_total",
				Help: "Times the upstream reported throttling",
			},
		),
	}
}

func (m *Metrics) recordRequest(endpoint string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) requestStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) requestFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) recordRetry(endpoint string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) recordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) recordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) recordCoalesced() {
	if m == nil {
		return
	}
	m.coalescedTotal.Inc()
}

func (m *Metrics) recordRateLimit() {
	if m == nil {
		return
	}
	m.rateLimitEvents.Inc()
}
