package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the delivery API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	seriesMutations *prometheus.CounterVec
	seriesSkipped   prometheus.Counter
	capacityWrites  *prometheus.CounterVec
	capacityDropped prometheus.Counter
	capacityRelayed *prometheus.CounterVec
	capacitySubs    prometheus.Gauge
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
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

	seriesMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_series_mutations_total",
		Help: "Series create, edit and delete operations by scope and outcome",
	}, []string{"operation", "scope", "status"})

	seriesSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_series_skipped_dates_total",
		Help: "Occurrence dates not booked because the client already had a delivery that day",
	})

	capacityWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_writes_total",
		Help: "Capacity limit writes by mode",
	}, []string{"mode"})

	capacityDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capacity_notifications_dropped_total",
		Help: "Capacity change notifications dropped for slow subscribers",
	})

	capacityRelayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_relay_messages_total",
		Help: "Capacity changes exchanged with other instances",
	}, []string{"direction", "status"})

	capacitySubs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capacity_subscribers",
		Help: "Active capacity change subscriptions",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, seriesMutations, seriesSkipped, capacityWrites, capacityDropped,
		capacityRelayed, capacitySubs, cacheLatency, cacheWrite, cacheHits, cacheMisses, dbQueryDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		seriesMutations: seriesMutations,
		seriesSkipped:   seriesSkipped,
		capacityWrites:  capacityWrites,
		capacityDropped: capacityDropped,
		capacityRelayed: capacityRelayed,
		capacitySubs:    capacitySubs,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// CountHTTPRequest counts a request without observing its duration. Used for long-lived streams.
func (m *MetricsService) CountHTTPRequest(method, path string, status int) {
	if m == nil {
		return
	}
	m.requestTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
}

// RecordSeriesMutation counts one series mutation and the dates it had to skip.
func (m *MetricsService) RecordSeriesMutation(operation, scope, status string, skipped int) {
	if m == nil {
		return
	}
	m.seriesMutations.WithLabelValues(operation, scope, status).Inc()
	if skipped > 0 {
		m.seriesSkipped.Add(float64(skipped))
	}
}

// RecordCapacityWrite counts one capacity write.
func (m *MetricsService) RecordCapacityWrite(mode string) {
	if m == nil {
		return
	}
	m.capacityWrites.WithLabelValues(mode).Inc()
}

// RecordCapacityDrop counts a notification dropped by a lagging subscriber.
func (m *MetricsService) RecordCapacityDrop() {
	if m == nil {
		return
	}
	m.capacityDropped.Inc()
}

// RecordCapacityRelay counts a change sent to or received from another instance.
func (m *MetricsService) RecordCapacityRelay(direction string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.capacityRelayed.WithLabelValues(direction, status).Inc()
}

// SetCapacitySubscribers reports the number of open subscriptions.
func (m *MetricsService) SetCapacitySubscribers(n int) {
	if m == nil {
		return
	}
	m.capacitySubs.Set(float64(n))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database operation timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}
