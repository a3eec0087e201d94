// Package observability provides Prometheus metrics instrumentation for the core.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/relay-orchestration/relay-core/channel"
)

// =============================================================================
// TASK METRICS
// =============================================================================

var (
	tasksStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_tasks_started_total",
			Help: "Total number of tasks started",
		},
		[]string{"step"},
	)

	tasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_tasks_completed_total",
			Help: "Total number of tasks reaching a terminal phase",
		},
		[]string{"terminal_status"}, // completed, iteration_limit_reached, rejected, failed
	)
)

// =============================================================================
// ADVANCE METRICS
// =============================================================================

var (
	advancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_advances_total",
			Help: "Total number of engine advance calls",
		},
		[]string{"entry_phase", "status"}, // status: success, error, conflict
	)

	advanceDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_advance_duration_seconds",
			Help:    "Engine advance duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"entry_phase"},
	)
)

// =============================================================================
// CHANNEL METRICS
// =============================================================================

var (
	eventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_emitted_total",
			Help: "Total number of events emitted on task channels",
		},
		[]string{"type"},
	)

	rateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_rejections_total",
			Help: "Total number of StartTask calls rejected by the rate limiter",
		},
		[]string{"limit_type"}, // minute, hour
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordTaskStarted records a task start.
func RecordTaskStarted(step string) {
	tasksStartedTotal.WithLabelValues(step).Inc()
}

// RecordTaskCompleted records a task reaching a terminal phase.
func RecordTaskCompleted(terminalStatus string) {
	tasksCompletedTotal.WithLabelValues(terminalStatus).Inc()
}

// RecordAdvance records an engine advance.
// This should be called after the advance completes.
func RecordAdvance(entryPhase string, status string, durationMS int) {
	advancesTotal.WithLabelValues(entryPhase, status).Inc()
	advanceDurationSeconds.WithLabelValues(entryPhase).Observe(float64(durationMS) / 1000.0)
}

// RecordRateLimitRejection records a rate limited StartTask call.
func RecordRateLimitRejection(limitType string) {
	rateLimitRejectionsTotal.WithLabelValues(limitType).Inc()
}

// =============================================================================
// CHANNEL MIDDLEWARE
// =============================================================================

// MetricsMiddleware counts emitted events per type. Attach it to the
// channel's middleware chain.
type MetricsMiddleware struct{}

// NewMetricsMiddleware creates a new MetricsMiddleware.
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{}
}

// Before implements channel.Middleware.
func (m *MetricsMiddleware) Before(ctx context.Context, event channel.Event) (channel.Event, bool) {
	return event, true
}

// After implements channel.Middleware.
func (m *MetricsMiddleware) After(ctx context.Context, event channel.Event) {
	eventsEmittedTotal.WithLabelValues(string(event.Type)).Inc()
}

var _ channel.Middleware = (*MetricsMiddleware)(nil)
