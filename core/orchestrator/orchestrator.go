// Package orchestrator provides the orchestration facade - the entry
// points external callers use to drive tasks.
//
// The facade composes:
//   - Execution engine (state machine)
//   - Checkpoint service (suspend/resume)
//   - Event channel (ordered delivery with replay)
//   - Rate limiter (per-session start budget)
//   - Sweeper (stale checkpoint policy, optional)
//
// This is the main entry point for embedding the core; gateways and the
// daemon talk to the Orchestrator, never to the engine directly.
package orchestrator

import (
	"context"
	"time"

	"github.com/relay-orchestration/relay-core/channel"
	"github.com/relay-orchestration/relay-core/core/checkpoint"
	"github.com/relay-orchestration/relay-core/core/config"
	"github.com/relay-orchestration/relay-core/core/engine"
	"github.com/relay-orchestration/relay-core/core/observability"
	"github.com/relay-orchestration/relay-core/core/router"
	"github.com/relay-orchestration/relay-core/core/step"
	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/core/task"
)

// Logger is the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, keysAndValues ...any) {}
func (nopLogger) Info(msg string, keysAndValues ...any)  {}
func (nopLogger) Warn(msg string, keysAndValues ...any)  {}
func (nopLogger) Error(msg string, keysAndValues ...any) {}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator is the facade over the execution core.
//
// Usage:
//
//	registry := step.NewRegistry()
//	step.RegisterBuiltins(registry)
//	orch := New(cfg, st, ch, registry, nil, logger)
//
//	taskID, _ := orch.StartTask(ctx, "check invoice X", "session-1")
//	orch.Subscribe(ctx, taskID, "ui-1", observer, 0)
//	orch.SubmitApproval(ctx, taskID, true)
//	orch.SubmitClarification(ctx, taskID, "OK")
type Orchestrator struct {
	cfg     *config.CoreConfig
	store   store.Store
	channel channel.Channel
	engine  *engine.Engine
	limiter *RateLimiter
	logger  Logger
}

// New creates a new Orchestrator, wiring the engine and its collaborators.
// planner may be nil for the default template planner.
func New(
	cfg *config.CoreConfig,
	st store.Store,
	ch channel.Channel,
	steps *step.Registry,
	planner step.Planner,
	logger Logger,
) *Orchestrator {
	if logger == nil {
		logger = nopLogger{}
	}
	rt := router.New(cfg)
	eng := engine.New(st, checkpoint.NewService(st, logger), rt, steps, planner, ch, logger)
	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		channel: ch,
		engine:  eng,
		limiter: NewRateLimiter(cfg.StartsPerMinute, cfg.StartsPerHour),
		logger:  logger,
	}
}

// =============================================================================
// Facade Operations
// =============================================================================

// StartTask creates a task and advances it to the first checkpoint.
func (o *Orchestrator) StartTask(ctx context.Context, description, sessionID string) (string, error) {
	if result := o.limiter.Check(sessionID); !result.Allowed {
		observability.RecordRateLimitRejection(result.LimitType)
		o.logger.Warn("start_rate_limited",
			"session_id", sessionID, "limit_type", result.LimitType)
		return "", &RateLimitedError{SessionID: sessionID, Result: result}
	}

	state, err := o.engine.Start(ctx, description, sessionID)
	if err != nil {
		return "", err
	}
	return state.TaskID, nil
}

// SubmitApproval resumes a task suspended at the approval checkpoint.
// Returns the phase the task advanced to.
func (o *Orchestrator) SubmitApproval(ctx context.Context, taskID string, approved bool) (task.Phase, error) {
	if err := o.ensureRestored(ctx, taskID); err != nil {
		return "", err
	}
	decision := task.ApprovalRejected
	if approved {
		decision = task.ApprovalApproved
	}
	state, err := o.engine.ResumeApproval(ctx, taskID, decision)
	if err != nil {
		return "", err
	}
	return state.Phase, nil
}

// SubmitClarification resumes a task suspended at the clarification
// checkpoint. Returns the phase the task advanced to.
func (o *Orchestrator) SubmitClarification(ctx context.Context, taskID, answer string) (task.Phase, error) {
	if err := o.ensureRestored(ctx, taskID); err != nil {
		return "", err
	}
	state, err := o.engine.ResumeClarification(ctx, taskID, answer)
	if err != nil {
		return "", err
	}
	return state.Phase, nil
}

// Subscribe registers an observer for a task's events, replaying
// everything after afterSeq. If the channel lost its buffer (process
// restart), it is rebuilt from the task's persisted history first.
func (o *Orchestrator) Subscribe(ctx context.Context, taskID, observerID string, observer channel.Observer, afterSeq uint64) error {
	if err := o.ensureRestored(ctx, taskID); err != nil {
		return err
	}
	return o.channel.Register(taskID, observerID, observer, afterSeq)
}

// ensureRestored seeds the channel's log from persisted history when the
// buffer was lost to a restart. Restore re-checks emptiness under the
// channel lock, and every resume path restores before it can emit, so a
// post-restart event always lands after the rebuilt history and continues
// its numbering.
func (o *Orchestrator) ensureRestored(ctx context.Context, taskID string) error {
	if len(o.channel.Events(taskID, 0)) > 0 {
		return nil
	}
	state, _, err := o.store.Load(ctx, taskID)
	if err != nil {
		return err
	}
	return o.channel.Restore(taskID, historyEvents(state))
}

// Unsubscribe removes an observer, keeping the task's buffer.
func (o *Orchestrator) Unsubscribe(taskID, observerID string) {
	o.channel.Deregister(taskID, observerID)
}

// GetTaskStatus returns the task's status dictionary.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, taskID string) (map[string]any, error) {
	state, _, err := o.store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return state.ToStatusDict(), nil
}

// =============================================================================
// Maintenance
// =============================================================================

// Cleanup runs one maintenance cycle: drops channel buffers of tasks that
// have been terminal longer than the retention window, deletes their
// persisted state, and prunes idle rate limit windows.
func (o *Orchestrator) Cleanup(ctx context.Context) (int, error) {
	buffers := o.channel.Cleanup(o.cfg.EventRetention)
	windows := o.limiter.CleanupExpired()

	cutoff := time.Now().UTC().Add(-o.cfg.EventRetention)
	ids, err := o.store.List(ctx)
	if err != nil {
		return buffers, err
	}
	deleted := 0
	for _, id := range ids {
		state, _, err := o.store.Load(ctx, id)
		if err != nil {
			continue
		}
		if !state.Phase.IsTerminal() || state.CompletedAt == nil || state.CompletedAt.After(cutoff) {
			continue
		}
		if err := o.store.Delete(ctx, id); err != nil {
			o.logger.Warn("cleanup_delete_failed", "task_id", id, "error", err)
			continue
		}
		deleted++
	}

	o.logger.Debug("cleanup_cycle_completed",
		"buffers_dropped", buffers, "tasks_deleted", deleted, "rate_windows_pruned", windows)
	return buffers + deleted, nil
}

// StartCleanupLoop starts a background goroutine that periodically runs
// Cleanup. Returns a stop function.
func (o *Orchestrator) StartCleanupLoop(interval time.Duration) func() {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := o.Cleanup(context.Background()); err != nil {
					o.logger.Error("cleanup_cycle_failed", "error", err)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}

// =============================================================================
// History Reconstruction
// =============================================================================

// historyEvents converts a task's persisted history into channel events.
// The history is the authoritative record: each actor maps onto the event
// type its entry was originally emitted as.
func historyEvents(state *task.State) []channel.Event {
	events := make([]channel.Event, 0, len(state.History))
	for _, entry := range state.History {
		var event channel.Event
		switch entry.Actor {
		case task.ActorUser:
			// User inputs are recorded for audit, not emitted.
			continue
		case task.ActorPlanner, task.ActorEngine:
			event = channel.Event{
				Type:    channel.EventAgentMessage,
				Payload: map[string]any{"actor": entry.Actor, "text": entry.Text},
			}
		case task.ActorApprovalRequest:
			event = channel.Event{
				Type: channel.EventApprovalRequest,
				Payload: map[string]any{
					"prompt":        entry.Text,
					"selected_step": state.SelectedStep,
				},
			}
		case task.ActorClarificationRequest:
			event = channel.Event{
				Type: channel.EventClarificationRequest,
				Payload: map[string]any{
					"prompt":      entry.Text,
					"step_result": state.StepResult,
				},
			}
		case task.ActorFinalResult:
			// Mirror the live final_result payload: step_result only
			// when present, and the failure cause (recorded as this
			// history entry's text) for failed tasks.
			payload := map[string]any{
				"terminal_status": state.TerminalStatus(),
				"iteration_count": state.IterationCount,
			}
			if state.StepResult != "" {
				payload["step_result"] = state.StepResult
			}
			if state.Phase == task.PhaseFailed {
				payload["error"] = entry.Text
			}
			event = channel.Event{
				Type:    channel.EventFinalResult,
				Payload: payload,
			}
		default:
			continue
		}
		event.TaskID = state.TaskID
		event.ProducedAt = entry.Timestamp
		events = append(events, event)
	}
	return events
}
