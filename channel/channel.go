package channel

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Observer Mailbox
// =============================================================================

// mailbox is one observer's private delivery queue. A dedicated goroutine
// drains it, so OnEvent latency is isolated per observer.
type mailbox struct {
	ch     chan Event
	closed bool
}

func newMailbox(capacity int, observer Observer) *mailbox {
	mb := &mailbox{ch: make(chan Event, capacity)}
	go func() {
		for event := range mb.ch {
			observer.OnEvent(event)
		}
	}()
	return mb
}

// close is called with the channel mutex held, so it never races a send.
func (mb *mailbox) close() {
	if !mb.closed {
		mb.closed = true
		close(mb.ch)
	}
}

// =============================================================================
// Task Log
// =============================================================================

// taskLog is the append-only event buffer and observer set for one task.
type taskLog struct {
	events     []Event
	nextSeq    uint64
	observers  map[string]*mailbox
	terminalAt *time.Time
}

func newTaskLog() *taskLog {
	return &taskLog{
		nextSeq:   1,
		observers: make(map[string]*mailbox),
	}
}

// eventsAfter returns a copy of buffered events with Seq > afterSeq.
func (l *taskLog) eventsAfter(afterSeq uint64) []Event {
	// Seqs are dense from 1, so the slice offset is direct.
	if afterSeq >= uint64(len(l.events)) {
		return nil
	}
	out := make([]Event, len(l.events)-int(afterSeq))
	copy(out, l.events[afterSeq:])
	return out
}

// =============================================================================
// In-Memory Channel
// =============================================================================

// InMemoryChannel is the in-process implementation of Channel.
//
// Thread-safe. All mutation happens under a single mutex; observer
// callbacks run on per-observer goroutines outside the lock, so Emit
// cost is bounded regardless of consumer speed.
//
// Usage:
//
//	ch := NewInMemoryChannel(256, logger, NewLoggingMiddleware(logger))
//	ch.Register(taskID, "ui", observer, 0)
//	ch.Emit(ctx, Event{TaskID: taskID, Type: EventAgentMessage, ...})
type InMemoryChannel struct {
	logs       map[string]*taskLog
	middleware []Middleware
	bufferSize int
	logger     Logger
	closed     bool
	mu         sync.Mutex
}

// NewInMemoryChannel creates a new InMemoryChannel. bufferSize is the
// per-observer mailbox capacity beyond replay; an observer that falls
// this far behind live emission is dropped.
func NewInMemoryChannel(bufferSize int, logger Logger, middleware ...Middleware) *InMemoryChannel {
	if logger == nil {
		logger = NopLogger{}
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &InMemoryChannel{
		logs:       make(map[string]*taskLog),
		middleware: middleware,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Emit implements Channel.
func (c *InMemoryChannel) Emit(ctx context.Context, event Event) (Event, error) {
	if event.TaskID == "" {
		return Event{}, NewInvalidEventError("missing task_id")
	}
	if event.Type == "" {
		return Event{}, NewInvalidEventError("missing type")
	}

	// Run middleware before (outside the lock; Seq is not yet assigned).
	for _, m := range c.middleware {
		var ok bool
		event, ok = m.Before(ctx, event)
		if !ok {
			c.logger.Debug("event_aborted_by_middleware",
				"task_id", event.TaskID, "type", string(event.Type))
			return Event{}, nil
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Event{}, NewClosedError()
	}

	log, ok := c.logs[event.TaskID]
	if !ok {
		log = newTaskLog()
		c.logs[event.TaskID] = log
	}

	event.Seq = log.nextSeq
	log.nextSeq++
	if event.ProducedAt.IsZero() {
		event.ProducedAt = time.Now().UTC()
	}
	log.events = append(log.events, event)

	if event.Type == EventFinalResult {
		now := time.Now().UTC()
		log.terminalAt = &now
	}

	// Fan out without blocking. A full mailbox means the observer fell
	// too far behind; drop it and let it reconnect with replay.
	for id, mb := range log.observers {
		select {
		case mb.ch <- event:
		default:
			c.logger.Warn("observer_dropped",
				"task_id", event.TaskID, "observer_id", id, "seq", event.Seq)
			mb.close()
			delete(log.observers, id)
		}
	}
	c.mu.Unlock()

	for _, m := range c.middleware {
		m.After(ctx, event)
	}

	c.logger.Debug("event_emitted",
		"task_id", event.TaskID, "type", string(event.Type), "seq", event.Seq)
	return event, nil
}

// Register implements Channel. The replay snapshot and observer insertion
// happen under one lock acquisition, so an event emitted concurrently is
// either in the replay or delivered live - never both, never neither.
func (c *InMemoryChannel) Register(taskID, observerID string, observer Observer, afterSeq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewClosedError()
	}

	log, ok := c.logs[taskID]
	if !ok {
		log = newTaskLog()
		c.logs[taskID] = log
	}

	if old, exists := log.observers[observerID]; exists {
		old.close()
		delete(log.observers, observerID)
	}

	replay := log.eventsAfter(afterSeq)
	mb := newMailbox(len(replay)+c.bufferSize, observer)
	for _, event := range replay {
		mb.ch <- event
	}
	log.observers[observerID] = mb

	c.logger.Debug("observer_registered",
		"task_id", taskID, "observer_id", observerID,
		"after_seq", afterSeq, "replayed", len(replay))
	return nil
}

// Deregister implements Channel.
func (c *InMemoryChannel) Deregister(taskID, observerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log, ok := c.logs[taskID]
	if !ok {
		return
	}
	if mb, exists := log.observers[observerID]; exists {
		mb.close()
		delete(log.observers, observerID)
		c.logger.Debug("observer_deregistered",
			"task_id", taskID, "observer_id", observerID)
	}
}

// Restore implements Channel. Sequence numbers are reassigned densely
// from 1 in the given order.
func (c *InMemoryChannel) Restore(taskID string, events []Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return NewClosedError()
	}
	if existing, ok := c.logs[taskID]; ok && len(existing.events) > 0 {
		return nil
	}

	log := newTaskLog()
	for _, event := range events {
		event.TaskID = taskID
		event.Seq = log.nextSeq
		log.nextSeq++
		log.events = append(log.events, event)
		if event.Type == EventFinalResult {
			at := event.ProducedAt
			if at.IsZero() {
				at = time.Now().UTC()
			}
			log.terminalAt = &at
		}
	}
	c.logs[taskID] = log

	c.logger.Info("channel_restored", "task_id", taskID, "events", len(events))
	return nil
}

// Events implements Channel.
func (c *InMemoryChannel) Events(taskID string, afterSeq uint64) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	log, ok := c.logs[taskID]
	if !ok {
		return nil
	}
	return log.eventsAfter(afterSeq)
}

// Cleanup implements Channel.
func (c *InMemoryChannel) Cleanup(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for taskID, log := range c.logs {
		if log.terminalAt == nil || log.terminalAt.After(cutoff) {
			continue
		}
		for _, mb := range log.observers {
			mb.close()
		}
		delete(c.logs, taskID)
		dropped++
	}
	if dropped > 0 {
		c.logger.Debug("channel_cleanup_completed", "buffers_dropped", dropped)
	}
	return dropped
}

// Close implements Channel.
func (c *InMemoryChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for _, log := range c.logs {
		for _, mb := range log.observers {
			mb.close()
		}
		log.observers = make(map[string]*mailbox)
	}
}

var _ Channel = (*InMemoryChannel)(nil)
