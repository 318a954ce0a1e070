package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/pagepush/internal/fault"
	"github.com/keithlinneman/pagepush/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// publishing
	pagesPublished   *prometheus.CounterVec
	publishRejected  *prometheus.CounterVec
	storeWriteDur    *prometheus.HistogramVec
	invalidations    *prometheus.CounterVec
	invalidatedPaths prometheus.Histogram
}

// New returns a fresh registry + standard collectors + HTTP and publishing metrics.
// Safe labels only (method, route, code, outcome) to avoid cardinality explosions.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 256, 1024, 4096, 16384, 65536},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		pagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pages_published_total",
			Help: "Pages written to the bucket, by whether the footer was injected",
		}, []string{"footer_added"}),
		publishRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "publish_rejected_total",
			Help: "Publish requests that did not result in a write, by reason",
		}, []string{"reason"}),
		storeWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "store_write_duration_seconds",
			Help:    "Latency of object store writes",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"result"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cdn_invalidations_total",
			Help: "Invalidation batches handled, by result (created, skipped, or the failure kind)",
		}, []string{"result"}),
		invalidatedPaths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdn_invalidation_paths",
			Help:    "Distinct paths per submitted invalidation batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 500, 1000, 3000},
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.pagesPublished,
		m.publishRejected,
		m.storeWriteDur,
		m.invalidations,
		m.invalidatedPaths,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.AppName,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// PagePublished implements publisher.Recorder.
func (m *ServerMetrics) PagePublished(footerAdded bool) {
	m.pagesPublished.WithLabelValues(strconv.FormatBool(footerAdded)).Inc()
}

// PublishRejected implements publisher.Recorder.
func (m *ServerMetrics) PublishRejected(kind fault.Kind) {
	m.publishRejected.WithLabelValues(string(kind)).Inc()
}

// ObserveStoreWrite is an objstore.S3Writer observer.
func (m *ServerMetrics) ObserveStoreWrite(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeWriteDur.WithLabelValues(result).Observe(d.Seconds())
}

// InvalidationResult implements invalidator.Recorder. An empty kind with no
// paths is a skipped batch.
func (m *ServerMetrics) InvalidationResult(kind fault.Kind, paths int) {
	result := string(kind)
	switch {
	case kind == "" && paths == 0:
		result = "skipped"
	case kind == "":
		result = "created"
	}
	m.invalidations.WithLabelValues(result).Inc()
	if paths > 0 && kind == "" {
		m.invalidatedPaths.Observe(float64(paths))
	}
}
