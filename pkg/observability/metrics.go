package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AccessChecksTotal  *prometheus.CounterVec
	AccessDenialsTotal *prometheus.CounterVec

	// Permission sync metrics
	PermissionsMounted   prometheus.Gauge
	PermissionsUnmounted prometheus.Gauge
	GrantsPurgedTotal    prometheus.Counter

	// Request log metrics
	LogEntriesTotal prometheus.Counter

	// File metrics
	FileUploadsTotal  *prometheus.CounterVec
	FileUploadedBytes prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quill_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_access_checks_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"mode", "result"},
		),
		AccessDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_access_denials_total",
				Help: "Total number of denied authorization decisions",
			},
			[]string{"mode"},
		),
		PermissionsMounted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quill_permissions_mounted",
				Help: "Number of mounted permissions after the last synchronization",
			},
		),
		PermissionsUnmounted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quill_permissions_unmounted",
				Help: "Number of unmounted permissions after the last synchronization",
			},
		),
		GrantsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quill_grants_purged_total",
				Help: "Group permission grants purged because their permission was unmounted",
			},
		),
		LogEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quill_log_entries_total",
				Help: "Request log entries recorded",
			},
		),
		FileUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_file_uploads_total",
				Help: "Total number of file uploads",
			},
			[]string{"status"},
		),
		FileUploadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quill_file_uploaded_bytes_total",
				Help: "Total bytes accepted by the uploader",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessChecksTotal,
		m.AccessDenialsTotal,
		m.PermissionsMounted,
		m.PermissionsUnmounted,
		m.GrantsPurgedTotal,
		m.LogEntriesTotal,
		m.FileUploadsTotal,
		m.FileUploadedBytes,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry in Prometheus format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
