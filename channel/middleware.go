// Middleware implementations for the event channel.
//
// Available Middleware:
//   - LoggingMiddleware: structured logging of all event traffic
//   - PayloadStampMiddleware: stamps static key/value pairs into payloads
package channel

import (
	"context"
)

// =============================================================================
// Logging Middleware
// =============================================================================

// LoggingMiddleware logs all event traffic.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	if logger == nil {
		logger = NopLogger{}
	}
	return &LoggingMiddleware{logger: logger}
}

// Before logs the outgoing event.
func (m *LoggingMiddleware) Before(ctx context.Context, event Event) (Event, bool) {
	m.logger.Debug("channel_event_out",
		"task_id", event.TaskID, "type", string(event.Type))
	return event, true
}

// After logs the assigned sequence number.
func (m *LoggingMiddleware) After(ctx context.Context, event Event) {
	m.logger.Debug("channel_event_delivered",
		"task_id", event.TaskID, "type", string(event.Type), "seq", event.Seq)
}

// =============================================================================
// Payload Stamp Middleware
// =============================================================================

// PayloadStampMiddleware copies fixed key/value pairs into every event
// payload. Used by the daemon to tag events with the node name.
type PayloadStampMiddleware struct {
	stamps map[string]any
}

// NewPayloadStampMiddleware creates a new PayloadStampMiddleware.
func NewPayloadStampMiddleware(stamps map[string]any) *PayloadStampMiddleware {
	return &PayloadStampMiddleware{stamps: stamps}
}

// Before merges the stamps into the payload. Existing keys win.
func (m *PayloadStampMiddleware) Before(ctx context.Context, event Event) (Event, bool) {
	if len(m.stamps) == 0 {
		return event, true
	}
	payload := make(map[string]any, len(event.Payload)+len(m.stamps))
	for k, v := range m.stamps {
		payload[k] = v
	}
	for k, v := range event.Payload {
		payload[k] = v
	}
	event.Payload = payload
	return event, true
}

// After is a no-op.
func (m *PayloadStampMiddleware) After(ctx context.Context, event Event) {}

// Ensure all middleware types implement Middleware.
var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*PayloadStampMiddleware)(nil)
)
