package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// invitation workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	reconcileRuns      *prometheus.CounterVec
	rosterClaims       prometheus.Counter
	eventsPublished    *prometheus.CounterVec
	streamSubscribers  prometheus.Gauge
	notificationErrors prometheus.Counter
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

	reconcileRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "onboarding_reconcile_runs_total",
		Help: "Reconciliation passes by outcome of each step",
	}, []string{"step", "outcome"})

	rosterClaims := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_entries_claimed_total",
		Help: "Roster entries linked to an authenticated account",
	})

	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invitation_events_published_total",
		Help: "Invitation change events published to the realtime channel",
	}, []string{"type"})

	streamSubscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invitation_stream_subscribers",
		Help: "Currently connected invitation stream subscribers",
	})

	notificationErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_write_errors_total",
		Help: "Best-effort notification writes that failed",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, reconcileRuns, rosterClaims, eventsPublished, streamSubscribers, notificationErrors, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		reconcileRuns:      reconcileRuns,
		rosterClaims:       rosterClaims,
		eventsPublished:    eventsPublished,
		streamSubscribers:  streamSubscribers,
		notificationErrors: notificationErrors,
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveReconcileStep records the outcome of a reconciliation step.
func (m *MetricsService) ObserveReconcileStep(step string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.reconcileRuns.WithLabelValues(step, outcome).Inc()
}

// AddRosterClaims counts newly claimed roster entries.
func (m *MetricsService) AddRosterClaims(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rosterClaims.Add(float64(n))
}

// ObserveEventPublished counts a published realtime event.
func (m *MetricsService) ObserveEventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// StreamSubscribed tracks subscriber connect/disconnect.
func (m *MetricsService) StreamSubscribed(delta int) {
	if m == nil {
		return
	}
	m.streamSubscribers.Add(float64(delta))
}

// ObserveNotificationError counts a failed best-effort notification write.
func (m *MetricsService) ObserveNotificationError() {
	if m == nil {
		return
	}
	m.notificationErrors.Inc()
}
