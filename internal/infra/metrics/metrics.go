package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service owns a private Prometheus registry. It implements app.Recorder.
type Service struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	armed           *prometheus.CounterVec
	claimed         prometheus.Counter
	upstream        *prometheus.CounterVec
}

func NewService() *Service {
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

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Push delivery attempts by platform and outcome",
	}, []string{"platform", "outcome"})

	armed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_armed_total",
		Help: "Scheduling units armed, by subscription type",
	}, []string{"type"})

	claimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_claimed_total",
		Help: "Due notifications claimed by the dispatcher",
	})

	upstream := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Geodata fetches by source and result",
	}, []string{"source", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, deliveries, armed, claimed, upstream, goroutines)

	return &Service{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		deliveries:      deliveries,
		armed:           armed,
		claimed:         claimed,
		upstream:        upstream,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *Service) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry is exposed for tests and extra collectors.
func (m *Service) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Service) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

func (m *Service) ObserveDelivery(platform, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(platform, outcome).Inc()
}

func (m *Service) ObserveClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.claimed.Add(float64(n))
}

func (m *Service) ObserveUpstream(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstream.WithLabelValues(source, result).Inc()
}

func (m *Service) ObserveArmed(kind string) {
	if m == nil {
		return
	}
	m.armed.WithLabelValues(kind).Inc()
}
