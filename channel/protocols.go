// Package channel provides the per-task event channel - the ordered,
// replayable delivery path between the execution engine and external
// observers (UI clients, gateways).
//
// Protocol Categories:
//   - Event: the immutable, sequence-numbered unit of delivery
//   - Observer: the consumer contract
//   - Channel: the emit/register/replay contract
//   - Middleware: before/after interception for cross-cutting concerns
package channel

import (
	"context"
	"time"
)

// =============================================================================
// Events
// =============================================================================

// EventType classifies channel events.
type EventType string

const (
	// EventAgentMessage carries free-form progress text (planner output,
	// step results, engine notices).
	EventAgentMessage EventType = "agent_message"
	// EventApprovalRequest signals the task is suspended awaiting approval.
	EventApprovalRequest EventType = "approval_request"
	// EventClarificationRequest signals the task is suspended awaiting
	// a clarification answer.
	EventClarificationRequest EventType = "clarification_request"
	// EventFinalResult carries the terminal outcome. Exactly one per task.
	EventFinalResult EventType = "final_result"
)

// Event is one unit of delivery on a task's channel.
//
// Seq is assigned by the channel at emit time: per-task, monotonically
// increasing, starting at 1. Events are immutable once emitted.
type Event struct {
	TaskID     string         `json:"task_id"`
	Seq        uint64         `json:"seq"`
	Type       EventType      `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	ProducedAt time.Time      `json:"produced_at"`
}

// =============================================================================
// Observer Protocol
// =============================================================================

// Observer consumes events for one task, in sequence order.
//
// OnEvent is called from the observer's private delivery goroutine; a slow
// OnEvent delays only this observer, never the emitter or other observers.
type Observer interface {
	OnEvent(event Event)
}

// ObserverFunc is a function type that implements Observer.
type ObserverFunc func(event Event)

// OnEvent implements the Observer interface.
func (f ObserverFunc) OnEvent(event Event) {
	f(event)
}

// =============================================================================
// Channel Protocol
// =============================================================================

// Channel is the protocol for the per-task event channel.
//
// Delivery guarantees for a registered observer:
//   - events arrive in strictly increasing Seq order
//   - no gaps, no duplicates, starting after the requested afterSeq
//
// Emit never blocks on consumers. An observer that cannot keep up is
// dropped; on reconnect it replays from its last processed Seq.
type Channel interface {
	// Emit assigns the next sequence number, appends the event to the
	// task's log, and fans it out to registered observers.
	Emit(ctx context.Context, event Event) (Event, error)

	// Register adds an observer for a task, replaying all buffered events
	// with Seq > afterSeq before any newly emitted event. afterSeq 0 means
	// full replay. Registering an existing observerID replaces it.
	Register(taskID, observerID string, observer Observer, afterSeq uint64) error

	// Deregister removes an observer. The task's buffer is kept.
	Deregister(taskID, observerID string)

	// Restore rebuilds a task's log from externally persisted events,
	// reassigning sequence numbers from 1. No-op if a log already exists.
	Restore(taskID string, events []Event) error

	// Events returns a snapshot of the task's buffered events with
	// Seq > afterSeq.
	Events(taskID string, afterSeq uint64) []Event

	// Cleanup drops buffers of tasks that reached their final result more
	// than retention ago. Returns the number of buffers dropped.
	Cleanup(retention time.Duration) int

	// Close stops all observer deliveries.
	Close()
}

// =============================================================================
// Middleware Protocol
// =============================================================================

// Middleware intercepts events before/after emission.
// Used for logging, metrics, filtering.
type Middleware interface {
	// Before is called before the event is appended and fanned out.
	// Returns the (possibly modified) event; returning ok=false aborts
	// the emission without error.
	Before(ctx context.Context, event Event) (Event, bool)

	// After is called once the event has been appended and handed to
	// observer mailboxes.
	After(ctx context.Context, event Event)
}

// =============================================================================
// Logger Protocol
// =============================================================================

// Logger is the logging interface used by the channel.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger discards all log output.
type NopLogger struct{}

func (NopLogger) Debug(msg string, keysAndValues ...any) {}
func (NopLogger) Info(msg string, keysAndValues ...any)  {}
func (NopLogger) Warn(msg string, keysAndValues ...any)  {}
func (NopLogger) Error(msg string, keysAndValues ...any) {}
