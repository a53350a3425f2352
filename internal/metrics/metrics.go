package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics (metrics/health endpoint)
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Fetch pipeline metrics
	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	fetchesInFlight prometheus.Gauge
	fetchesDeduped  prometheus.Counter
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	archiveWrites   *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Fetch pipeline metrics
	r.fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_provider_fetches_total",
			Help: "Total number of provider fetch attempts",
		},
		[]string{"provider", "kind", "status"},
	)
	r.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_provider_fetch_duration_seconds",
			Help:    "Provider fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "kind"},
	)
	r.fetchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_fetches_in_flight",
			Help: "Number of provider fetches currently in flight",
		},
	)
	r.fetchesDeduped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_fetches_deduped_total",
			Help: "Total number of requests coalesced onto an in-flight fetch",
		},
	)
	r.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)
	r.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)
	r.archiveWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_archive_writes_total",
			Help: "Total number of cold archive writes",
		},
		[]string{"status"},
	)

	reg.MustRegister(r.fetchTotal)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.fetchesInFlight)
	reg.MustRegister(r.fetchesDeduped)
	reg.MustRegister(r.cacheHits)
	reg.MustRegister(r.cacheMisses)
	reg.MustRegister(r.archiveWrites)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordFetch records one provider fetch attempt and its duration.
func (r *Registry) RecordFetch(provider, kind, status string, duration float64) {
	r.fetchTotal.WithLabelValues(provider, kind, status).Inc()
	r.fetchDuration.WithLabelValues(provider, kind).Observe(duration)
}

// FetchInFlightInc increments in-flight provider fetches.
func (r *Registry) FetchInFlightInc() {
	r.fetchesInFlight.Inc()
}

// FetchInFlightDec decrements in-flight provider fetches.
func (r *Registry) FetchInFlightDec() {
	r.fetchesInFlight.Dec()
}

// RecordDedup records a request coalesced onto an in-flight fetch.
func (r *Registry) RecordDedup() {
	r.fetchesDeduped.Inc()
}

// RecordCacheHit records a cache hit for a data kind.
func (r *Registry) RecordCacheHit(kind string) {
	r.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss for a data kind.
func (r *Registry) RecordCacheMiss(kind string) {
	r.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordArchiveWrite records a cold archive write outcome.
func (r *Registry) RecordArchiveWrite(status string) {
	r.archiveWrites.WithLabelValues(status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
