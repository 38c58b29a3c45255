package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	appletVersions  *prometheus.CounterVec
	answerSubmits   *prometheus.CounterVec
	busDeliveries   *prometheus.CounterVec
	reencryptions   *prometheus.CounterVec
	reencryptedRows prometheus.Counter
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "History snapshot cache lookups by result",
	}, []string{"result"})

	appletVersions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applet_versions_total",
		Help: "Applet versions written, by bump kind",
	}, []string{"bump"})

	answerSubmits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "answer_submissions_total",
		Help: "Answer submission groups, by outcome",
	}, []string{"outcome"})

	busDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_deliveries_total",
		Help: "Outbound bus deliveries by sink, topic and result",
	}, []string{"sink", "topic", "result"})

	reencryptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reencryption_applets_total",
		Help: "Applets processed by answer reencryption, by outcome",
	}, []string{"outcome"})

	reencryptedRows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reencryption_rows_total",
		Help: "Answer items resealed under a new password",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		appletVersions, answerSubmits, busDeliveries, reencryptions, reencryptedRows, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		appletVersions:  appletVersions,
		answerSubmits:   answerSubmits,
		busDeliveries:   busDeliveries,
		reencryptions:   reencryptions,
		reencryptedRows: reencryptedRows,
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

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAppletVersion counts a committed applet version.
func (m *MetricsService) RecordAppletVersion(bump string) {
	if m == nil {
		return
	}
	m.appletVersions.WithLabelValues(bump).Inc()
}

// RecordAnswerSubmission counts a stored or replayed submission group.
func (m *MetricsService) RecordAnswerSubmission(created bool) {
	if m == nil {
		return
	}
	outcome := "repeated"
	if created {
		outcome = "created"
	}
	m.answerSubmits.WithLabelValues(outcome).Inc()
}

// RecordBusDelivery counts one delivery attempt of the outbound bus.
func (m *MetricsService) RecordBusDelivery(sink, topic string, ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "delivered"
	}
	m.busDeliveries.WithLabelValues(sink, topic, result).Inc()
}

// RecordBusExhausted counts a message abandoned after its last retry.
func (m *MetricsService) RecordBusExhausted(sink, topic string) {
	if m == nil {
		return
	}
	m.busDeliveries.WithLabelValues(sink, topic, "exhausted").Inc()
}

// RecordReencryption counts one finished applet of a reencryption run.
func (m *MetricsService) RecordReencryption(outcome string, rows int) {
	if m == nil {
		return
	}
	m.reencryptions.WithLabelValues(outcome).Inc()
	m.reencryptedRows.Add(float64(rows))
}
