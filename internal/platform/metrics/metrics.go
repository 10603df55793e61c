package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// route label 一律用路由模板（/s/:code），不要用真实 path
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_request_total",
		Help: "HTTP requests by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "HTTP request latency by method and route pattern.",
		// 跳转要快，低段分得更细
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	HTTPInflightRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "HTTP requests currently being served.",
	})
)

var (
	ShortlinksCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_created_total",
		Help: "Short links created.",
	})

	// outcome: redirect / not_found / expired / error
	ShortlinkRedirects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_resolve_total",
		Help: "Short link resolutions by outcome.",
	}, []string{"outcome"})

	// 非 0 说明 visits 偏小，日志里有 link id
	VisitIncrementFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_visit_increment_failures_total",
		Help: "Visit increments that failed after a successful redirect.",
	})

	// level: l1 / l2 / bloom; result: hit / miss / negative / error / reject
	CacheOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_cache_operations_total",
		Help: "Short link cache lookups by level and result.",
	}, []string{"level", "result"})

	// result: queued / dropped / written / failed
	ClickEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_click_events_total",
		Help: "Click log events by pipeline stage result.",
	}, []string{"result"})

	// result: ok / error
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_total",
		Help: "File uploads by result.",
	}, []string{"result"})
)

var once sync.Once

// Init 注册到默认 registry；重复注册会 panic，所以只做一次
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			ShortlinksCreated,
			ShortlinkRedirects,
			VisitIncrementFailures,
			CacheOperations,
			ClickEvents,
			UploadsTotal,
		)
	})
}
