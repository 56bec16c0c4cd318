package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes recorded by the watermark worker.
const (
	OutcomeStamped      = "stamped"
	OutcomeSkipped      = "skipped"
	OutcomeRetried      = "retried"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeUnsettled    = "unsettled"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notes_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notes_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WatermarkJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notes_watermark_jobs_total",
			Help: "Watermark jobs handled by the worker, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	StampDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notes_stamp_duration_seconds",
			Help:    "Time spent inside the watermark engine",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	ViewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notes_document_views_total",
			Help: "Document renders served, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		WatermarkJobsTotal,
		StampDuration,
		ViewsTotal,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer serves /metrics on its own listener. Used by the worker,
// which has no HTTP router of its own. The returned server is already running.
func StartMetricsServer(addr string, onError func(error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()
	return srv
}

// RecordJob counts a worker outcome for a job kind.
func RecordJob(kind, outcome string) {
	WatermarkJobsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveStamp records how long one engine call took.
func ObserveStamp(kind string, d time.Duration) {
	StampDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// GinMiddleware records request count and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		RequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
