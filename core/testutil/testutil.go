// Package testutil provides shared test utilities and mocks for integration
// tests.
//
// All mocks in this package are designed for testing the core components in
// isolation without requiring external dependencies.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/relay-orchestration/relay-core/channel"
	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/core/task"
)

// =============================================================================
// SPY STEP
// =============================================================================

// SpyStep implements step.Step and records every invocation.
type SpyStep struct {
	// StepID is the registry identifier.
	StepID string

	// Result is returned on success.
	Result string

	// Error causes Execute to return this error.
	Error error

	// Delay simulates step latency.
	Delay time.Duration

	// ExecuteFunc allows custom execution logic. If set, it is called
	// instead of returning Result/Error.
	ExecuteFunc func(ctx context.Context, state *task.State, answer string) (string, error)

	// CallCount tracks the number of Execute calls.
	CallCount int

	// Calls records all calls for assertion.
	Calls []StepCall

	mu sync.Mutex
}

// StepCall records a single step invocation for assertion.
type StepCall struct {
	TaskID         string
	IterationCount int
	Answer         string
}

// NewSpyStep creates a SpyStep with a default result.
func NewSpyStep(id string) *SpyStep {
	return &SpyStep{StepID: id, Result: "spy result for " + id}
}

// ID implements step.Step.
func (s *SpyStep) ID() string { return s.StepID }

// Execute implements step.Step.
func (s *SpyStep) Execute(ctx context.Context, state *task.State, answer string) (string, error) {
	s.mu.Lock()
	s.CallCount++
	s.Calls = append(s.Calls, StepCall{
		TaskID:         state.TaskID,
		IterationCount: state.IterationCount,
		Answer:         answer,
	})
	custom := s.ExecuteFunc
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if custom != nil {
		return custom(ctx, state, answer)
	}
	if s.Error != nil {
		return "", s.Error
	}
	return s.Result, nil
}

// Count returns the number of Execute calls so far.
func (s *SpyStep) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCount
}

// =============================================================================
// FAILING STORE
// =============================================================================

// FailingStore wraps a store.Store and fails selected operations.
type FailingStore struct {
	store.Store

	// SaveError is returned by Save when set.
	SaveError error

	// FailSaveAfter fails every Save after this many successful calls.
	// Zero means never fail by count.
	FailSaveAfter int

	saves int
	mu    sync.Mutex
}

// NewFailingStore wraps an inner store.
func NewFailingStore(inner store.Store) *FailingStore {
	return &FailingStore{Store: inner}
}

// Save implements store.Store.
func (f *FailingStore) Save(ctx context.Context, state *task.State, expectedVersion uint64) (uint64, error) {
	f.mu.Lock()
	f.saves++
	saves := f.saves
	f.mu.Unlock()

	if f.SaveError != nil {
		return 0, f.SaveError
	}
	if f.FailSaveAfter > 0 && saves > f.FailSaveAfter {
		return 0, task.NewConcurrentModificationError(state.TaskID, expectedVersion, expectedVersion+1)
	}
	return f.Store.Save(ctx, state, expectedVersion)
}

// =============================================================================
// EVENT COLLECTOR
// =============================================================================

// EventCollector implements channel.Observer and records delivered events.
type EventCollector struct {
	mu     sync.Mutex
	events []channel.Event
}

// NewEventCollector creates an empty EventCollector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// OnEvent implements channel.Observer.
func (c *EventCollector) OnEvent(event channel.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the collected events.
func (c *EventCollector) Events() []channel.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]channel.Event, len(c.events))
	copy(out, c.events)
	return out
}

// WaitFor blocks until at least n events arrive or the timeout elapses.
// Returns the events seen either way.
func (c *EventCollector) WaitFor(n int, timeout time.Duration) []channel.Event {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if events := c.Events(); len(events) >= n {
			return events
		}
		time.Sleep(2 * time.Millisecond)
	}
	return c.Events()
}

// Types returns the event types in delivery order.
func (c *EventCollector) Types() []channel.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]channel.EventType, len(c.events))
	for i, event := range c.events {
		types[i] = event.Type
	}
	return types
}

// =============================================================================
// TEST LOGGER
// =============================================================================

// TestLogger records log calls for assertion.
type TestLogger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

// LogEntry is one recorded log call.
type LogEntry struct {
	Level  string
	Msg    string
	Fields []any
}

// NewTestLogger creates an empty TestLogger.
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

func (l *TestLogger) record(level, msg string, fields []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Fields: fields})
}

func (l *TestLogger) Debug(msg string, keysAndValues ...any) { l.record("debug", msg, keysAndValues) }
func (l *TestLogger) Info(msg string, keysAndValues ...any)  { l.record("info", msg, keysAndValues) }
func (l *TestLogger) Warn(msg string, keysAndValues ...any)  { l.record("warn", msg, keysAndValues) }
func (l *TestLogger) Error(msg string, keysAndValues ...any) { l.record("error", msg, keysAndValues) }

// Has reports whether a message was logged at any level.
func (l *TestLogger) Has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.Entries {
		if e.Msg == msg {
			return true
		}
	}
	return false
}
