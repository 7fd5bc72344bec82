package admin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wiretap-proxy/wiretap/internal/hook"
)

// Metrics holds the Prometheus instruments the admin surface exposes,
// replacing the teacher gateway's atomic-counter Metrics/MetricsSnapshot
// pair with real collectors registered against reg.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ModulesLoaded    prometheus.Gauge
	ModuleLoadsTotal *prometheus.CounterVec
	ModuleLoadErrors *prometheus.CounterVec
	PacketsForwarded *prometheus.CounterVec
	HooksCancelled   *prometheus.CounterVec
}

// NewMetrics registers and returns the admin surface's metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wiretap",
				Subsystem: "admin",
				Name:      "requests_total",
				Help:      "Total number of admin HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wiretap",
				Subsystem: "admin",
				Name:      "request_duration_seconds",
				Help:      "Admin HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ModulesLoaded: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "wiretap",
				Subsystem: "module",
				Name:      "loaded",
				Help:      "Number of currently loaded modules",
			},
		),
		ModuleLoadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wiretap",
				Subsystem: "module",
				Name:      "lifecycle_total",
				Help:      "Total module lifecycle transitions by operation and outcome",
			},
			[]string{"operation", "outcome"}, // operation=load|unload|reload|import
		),
		ModuleLoadErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wiretap",
				Subsystem: "module",
				Name:      "lifecycle_errors_total",
				Help:      "Total module lifecycle errors by operation",
			},
			[]string{"operation"},
		),
		PacketsForwarded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wiretap",
				Subsystem: "proxy",
				Name:      "packets_forwarded_total",
				Help:      "Total packets forwarded through the hook pipeline by direction",
			},
			[]string{"direction"},
		),
		HooksCancelled: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wiretap",
				Subsystem: "proxy",
				Name:      "hooks_cancelled_total",
				Help:      "Total packets cancelled by the hook pipeline by direction",
			},
			[]string{"direction"},
		),
	}
}

// RecordLifecycle records the outcome of a module lifecycle operation.
func (m *Metrics) RecordLifecycle(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.ModuleLoadErrors.WithLabelValues(operation).Inc()
	}
	m.ModuleLoadsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordForwarded implements proxy.Metrics: a packet of the given
// direction was forwarded to the opposite peer.
func (m *Metrics) RecordForwarded(dir hook.Direction) {
	m.PacketsForwarded.WithLabelValues(string(dir)).Inc()
}

// RecordCancelled implements proxy.Metrics: the hook pipeline suppressed
// forwarding of a packet of the given direction.
func (m *Metrics) RecordCancelled(dir hook.Direction) {
	m.HooksCancelled.WithLabelValues(string(dir)).Inc()
}

// RecordRequest records an admin HTTP request's status and duration.
func (m *Metrics) RecordRequest(method, path string, status int, dur time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
