package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	renderStage       *prometheus.HistogramVec
	renderOutputs     *prometheus.CounterVec
	previewRenders    *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixeldesk_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixeldesk_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixeldesk_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixeldesk_queue_jobs_enqueued_total",
			Help: "Total jobs enqueued to the render queue.",
		}, []string{"queue"}),
		renderStage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixeldesk_render_stage_duration_seconds",
			Help:    "Wall time of each render stage for synchronous and preview renders.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}),
		renderOutputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixeldesk_render_outputs_total",
			Help: "Total synchronous renders by output format.",
		}, []string{"format"}),
		previewRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixeldesk_preview_renders_total",
			Help: "Total debounced preview renders by outcome.",
		}, []string{"outcome"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.renderStage,
		m.renderOutputs,
		m.previewRenders,
	)
	return m
}

// ObserveStage records one render stage.
func (m *metrics) ObserveStage(stage string, d time.Duration) {
	m.renderStage.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *metrics) observePreview(_ string, _ uint64, err error, _ time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.previewRenders.WithLabelValues(outcome).Inc()
}

// trackPreviewSessions exposes the live session count as a gauge.
func (m *metrics) trackPreviewSessions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pixeldesk_preview_sessions",
		Help: "Current number of live preview sessions.",
	}, func() float64 { return float64(count()) }))
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/jobs/") && strings.HasSuffix(path, "/start"):
		return "/v1/jobs/{id}/start"
	case strings.HasPrefix(path, "/v1/jobs/"):
		return "/v1/jobs/{id}"
	case strings.HasPrefix(path, "/v1/jobs"):
		return "/v1/jobs"
	case strings.HasPrefix(path, "/v1/previews/") && strings.HasSuffix(path, "/settings"):
		return "/v1/previews/{id}/settings"
	case strings.HasPrefix(path, "/v1/previews/"):
		return "/v1/previews/{id}"
	case strings.HasPrefix(path, "/v1/previews"):
		return "/v1/previews"
	case strings.HasPrefix(path, "/v1/render"):
		return "/v1/render"
	case strings.HasPrefix(path, "/v1/formats"):
		return "/v1/formats"
	case strings.HasPrefix(path, "/healthz"):
		return "/healthz"
	case strings.HasPrefix(path, "/metrics"):
		return "/metrics"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
