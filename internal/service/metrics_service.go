package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API, the
// portal client, the lesson cache and the notification scheduler.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	portalDuration  *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	lessonsImported *prometheus.CounterVec
	pendingJobs     prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lesson_cache_hit_ratio",
		Help: "Ratio of lesson cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lesson_cache_hits_total",
		Help: "Total lesson cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lesson_cache_misses_total",
		Help: "Total lesson cache misses",
	})

	portalDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_request_duration_seconds",
		Help:    "Duration of portal round trips; status 0 means no response",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"operation", "status"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications attempted, by kind and result",
	}, []string{"kind", "result"})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_job_runs_total",
		Help: "Scheduler job executions, by job and result",
	}, []string{"job", "result"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_job_duration_seconds",
		Help:    "Duration of scheduler job executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	lessonsImported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_imports_total",
		Help: "Timetable imports, by source and parse status",
	}, []string{"source", "status"})

	pendingJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_registered_jobs",
		Help: "Jobs currently registered with the scheduler",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHitRatio, cacheHits, cacheMisses,
		portalDuration, notifications, jobRuns, jobDuration, lessonsImported, pendingJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		portalDuration:  portalDuration,
		notifications:   notifications,
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		lessonsImported: lessonsImported,
		pendingJobs:     pendingJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a lesson cache lookup and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObservePortalRequest implements portal.RequestObserver.
func (m *MetricsService) ObservePortalRequest(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.portalDuration.WithLabelValues(operation, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordNotification counts one delivery attempt.
func (m *MetricsService) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, resultLabel(err)).Inc()
}

// ObserveJob records one scheduler job execution.
func (m *MetricsService) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, resultLabel(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// SetRegisteredJobs reports the size of the scheduler registry.
func (m *MetricsService) SetRegisteredJobs(n int) {
	if m == nil {
		return
	}
	m.pendingJobs.Set(float64(n))
}

// RecordImport counts one timetable import by source (portal, upload) and
// parse status.
func (m *MetricsService) RecordImport(source, status string) {
	if m == nil {
		return
	}
	m.lessonsImported.WithLabelValues(source, status).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
