package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/relay-orchestration/relay-core/channel"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordTaskStarted(t *testing.T) {
	RecordTaskStarted("invoice_review")
	count := testutil.ToFloat64(tasksStartedTotal.WithLabelValues("invoice_review"))
	assert.Greater(t, count, 0.0)
}

func TestRecordTaskCompleted(t *testing.T) {
	for _, status := range []string{"completed", "iteration_limit_reached", "rejected", "failed"} {
		RecordTaskCompleted(status)
		count := testutil.ToFloat64(tasksCompletedTotal.WithLabelValues(status))
		assert.Greater(t, count, 0.0)
	}
}

func TestRecordAdvance(t *testing.T) {
	tests := []struct {
		name       string
		entryPhase string
		status     string
		durationMS int
	}{
		{"start", "planning", "success", 10},
		{"approval resume", "awaiting_approval", "success", 5},
		{"conflict", "awaiting_approval", "conflict", 1},
		{"failure", "executing", "error", 50},
		{"zero duration", "planning", "success", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			RecordAdvance(tt.entryPhase, tt.status, tt.durationMS)

			count := testutil.ToFloat64(advancesTotal.WithLabelValues(tt.entryPhase, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordRateLimitRejection(t *testing.T) {
	RecordRateLimitRejection("minute")
	count := testutil.ToFloat64(rateLimitRejectionsTotal.WithLabelValues("minute"))
	assert.Greater(t, count, 0.0)
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetricsMiddleware()
	event := channel.Event{TaskID: "task_a", Type: channel.EventAgentMessage, Seq: 1}

	out, ok := m.Before(context.Background(), event)
	assert.True(t, ok)
	assert.Equal(t, event, out)

	before := testutil.ToFloat64(eventsEmittedTotal.WithLabelValues(string(channel.EventAgentMessage)))
	m.After(context.Background(), event)
	after := testutil.ToFloat64(eventsEmittedTotal.WithLabelValues(string(channel.EventAgentMessage)))
	assert.Equal(t, before+1, after)
}
