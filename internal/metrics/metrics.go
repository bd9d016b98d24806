// Package metrics provides Prometheus metrics for the consultation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	PipelineDuration     prometheus.Histogram
	ValidationRejections *prometheus.CounterVec
	ModelFailuresTotal   prometheus.Counter
	ReconnectAttempts    prometheus.Counter
	TerminalDisconnects  prometheus.Counter
	ActiveConnections    prometheus.Gauge
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	m := &Metrics{}

	m.MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_messages_total",
			Help: "Total number of patient messages processed",
		},
		[]string{"status"},
	)

	m.PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telemed_pipeline_duration_seconds",
			Help:    "Duration of the full message pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemed_validation_rejections_total",
			Help: "AI completions rejected by the structural validator",
		},
		[]string{"reason"},
	)

	m.ModelFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemed_model_failures_total",
			Help: "Total number of failed AI model calls",
		},
	)

	m.ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemed_reconnect_attempts_total",
			Help: "Total number of websocket reconnection attempts",
		},
	)

	m.TerminalDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemed_terminal_disconnects_total",
			Help: "Sessions torn down after exhausting reconnection attempts",
		},
	)

	m.ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telemed_active_connections",
			Help: "Currently registered websocket connections",
		},
	)

	return m
}
