// Package engine provides the execution engine - the state machine that
// drives a task from planning through checkpoints to a terminal phase.
//
// The engine is driven entirely by external triggers: a start call and
// checkpoint resumes. Each trigger runs a bounded sequence of internal
// transitions until the task is suspended at a checkpoint or terminal.
// State is saved under the store's optimistic version check BEFORE any
// event is emitted: a save conflict means nothing was published.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/relay-orchestration/relay-core/channel"
	"github.com/relay-orchestration/relay-core/core/checkpoint"
	"github.com/relay-orchestration/relay-core/core/observability"
	"github.com/relay-orchestration/relay-core/core/router"
	"github.com/relay-orchestration/relay-core/core/step"
	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/core/task"
)

var tracer = otel.Tracer("relay-core/engine")

// Logger is the logging interface used by the engine.
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
// Engine
// =============================================================================

// Engine drives task execution. All state mutation in the system funnels
// through Start and the two Resume operations; each persists exactly once.
type Engine struct {
	store       store.Store
	checkpoints *checkpoint.Service
	router      *router.Router
	steps       *step.Registry
	planner     step.Planner
	channel     channel.Channel
	logger      Logger
}

// New creates a new Engine.
func New(
	st store.Store,
	checkpoints *checkpoint.Service,
	rt *router.Router,
	steps *step.Registry,
	planner step.Planner,
	ch channel.Channel,
	logger Logger,
) *Engine {
	if logger == nil {
		logger = nopLogger{}
	}
	if planner == nil {
		planner = step.NewTemplatePlanner()
	}
	return &Engine{
		store:       st,
		checkpoints: checkpoints,
		router:      rt,
		steps:       steps,
		planner:     planner,
		channel:     ch,
		logger:      logger,
	}
}

// =============================================================================
// Start
// =============================================================================

// Start creates a new task, runs the planner, selects the step, and
// suspends at the approval checkpoint. Returns the suspended (or, on
// planner failure, failed) state.
func (e *Engine) Start(ctx context.Context, description, sessionID string) (*task.State, error) {
	ctx, span := tracer.Start(ctx, "engine.Start")
	defer span.End()
	started := time.Now()

	state := task.New(description, sessionID)
	span.SetAttributes(
		attribute.String("task.id", state.TaskID),
		attribute.String("task.session_id", sessionID),
	)
	state.AppendHistory(task.ActorUser, description)

	var events []channel.Event

	state.SelectedStep = e.router.SelectStep(state)
	planText, err := e.planner.Plan(ctx, state, state.SelectedStep)
	if err != nil {
		e.failTask(state, &events, fmt.Errorf("planner: %w", err))
	} else {
		state.AppendHistory(task.ActorPlanner, planText)
		events = append(events, channel.Event{
			TaskID: state.TaskID,
			Type:   channel.EventAgentMessage,
			Payload: map[string]any{
				"actor": task.ActorPlanner,
				"text":  planText,
			},
		})

		req, err := e.checkpoints.Enter(state, checkpoint.KindApproval, planText)
		if err != nil {
			return nil, err
		}
		events = append(events, channel.Event{
			TaskID: state.TaskID,
			Type:   channel.EventApprovalRequest,
			Payload: map[string]any{
				"prompt":        req.Prompt,
				"selected_step": state.SelectedStep,
			},
		})
	}

	if _, err := e.store.Save(ctx, state, 0); err != nil {
		span.SetStatus(codes.Error, err.Error())
		observability.RecordAdvance(string(task.PhasePlanning), "error", durationMS(started))
		return nil, err
	}
	e.emit(ctx, events)

	// A planner failure lands here already terminal; that is a completed
	// task on the metrics pair, not a started one.
	if state.Phase == task.PhaseFailed {
		observability.RecordTaskCompleted(state.TerminalStatus())
	} else {
		observability.RecordTaskStarted(state.SelectedStep)
		e.logger.Info("task_started",
			"task_id", state.TaskID, "session_id", sessionID,
			"selected_step", state.SelectedStep, "phase", string(state.Phase))
	}
	observability.RecordAdvance(string(task.PhasePlanning), "success", durationMS(started))
	return state, nil
}

// =============================================================================
// Resume Operations
// =============================================================================

// ResumeApproval feeds an approval decision into a task suspended at the
// approval checkpoint and advances it to the next suspension or terminal
// phase.
func (e *Engine) ResumeApproval(ctx context.Context, taskID string, decision task.ApprovalDecision) (*task.State, error) {
	ctx, span := tracer.Start(ctx, "engine.ResumeApproval")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.decision", string(decision)),
	)
	started := time.Now()
	entry := string(task.PhaseAwaitingApproval)

	state, version, err := e.checkpoints.ResumeApproval(ctx, taskID, decision)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		observability.RecordAdvance(entry, "error", durationMS(started))
		return nil, err
	}

	var events []channel.Event
	if !e.router.DecideApproval(state.ApprovalDecision) {
		if err := state.Transition(task.PhaseRejected); err != nil {
			return nil, err
		}
		state.AppendHistory(task.ActorFinalResult, "rejected before execution")
		events = append(events, e.finalResultEvent(state, ""))
	} else {
		if err := state.Transition(task.PhaseExecuting); err != nil {
			return nil, err
		}
		e.executeStep(ctx, state, &events, "")
	}

	return e.finish(ctx, span, state, version, events, entry, started)
}

// ResumeClarification feeds a clarification answer into a task suspended
// at the clarification checkpoint. The revision loop is bounded: the
// iteration count is incremented before re-execution and hitting the cap
// forces completion with a truncation marker.
func (e *Engine) ResumeClarification(ctx context.Context, taskID, answer string) (*task.State, error) {
	ctx, span := tracer.Start(ctx, "engine.ResumeClarification")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID))
	started := time.Now()
	entry := string(task.PhaseAwaitingClarification)

	state, version, err := e.checkpoints.ResumeClarification(ctx, taskID, answer)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		observability.RecordAdvance(entry, "error", durationMS(started))
		return nil, err
	}

	var events []channel.Event
	outcome := e.router.DecideClarification(answer, state.IterationCount)
	if outcome == router.OutcomeTerminate {
		if err := state.Transition(task.PhaseCompleted); err != nil {
			return nil, err
		}
		state.AppendHistory(task.ActorFinalResult, state.StepResult)
		events = append(events, e.finalResultEvent(state, ""))
	} else {
		state.IterationCount++
		if state.IterationCount >= e.router.MaxIterations() {
			// Cap reached: force completion instead of another pass.
			if err := state.Transition(task.PhaseCompleted); err != nil {
				return nil, err
			}
			state.Truncated = true
			state.AppendHistory(task.ActorFinalResult,
				fmt.Sprintf("revision loop truncated after %d iterations", state.IterationCount))
			events = append(events, e.finalResultEvent(state, ""))
		} else {
			if err := state.Transition(task.PhaseExecuting); err != nil {
				return nil, err
			}
			e.executeStep(ctx, state, &events, answer)
		}
	}

	return e.finish(ctx, span, state, version, events, entry, started)
}

// =============================================================================
// Internal Transitions
// =============================================================================

// executeStep invokes the selected step exactly once and either suspends
// at the clarification checkpoint or absorbs the failure. state must be
// in the executing phase.
func (e *Engine) executeStep(ctx context.Context, state *task.State, events *[]channel.Event, answer string) {
	s, err := e.steps.Get(state.SelectedStep)
	if err == nil {
		var result string
		result, err = s.Execute(ctx, state, answer)
		if err == nil {
			state.StepResult = result
			state.AppendHistory(task.ActorEngine, result)
			*events = append(*events, channel.Event{
				TaskID: state.TaskID,
				Type:   channel.EventAgentMessage,
				Payload: map[string]any{
					"actor": task.ActorEngine,
					"text":  result,
				},
			})

			prompt := "Review the result. Reply with an affirmative to finish, or describe what to change."
			req, enterErr := e.checkpoints.Enter(state, checkpoint.KindClarification, prompt)
			if enterErr != nil {
				err = enterErr
			} else {
				*events = append(*events, channel.Event{
					TaskID: state.TaskID,
					Type:   channel.EventClarificationRequest,
					Payload: map[string]any{
						"prompt":          req.Prompt,
						"step_result":     state.StepResult,
						"iteration_count": state.IterationCount,
					},
				})
				return
			}
		}
	}
	e.failTask(state, events, task.NewStepExecutionError(state.TaskID, state.SelectedStep, err))
}

// failTask absorbs a collaborator failure into the failed phase. The
// error is recorded in history and surfaced via the final result; it is
// never propagated to the caller as an operation error.
func (e *Engine) failTask(state *task.State, events *[]channel.Event, cause error) {
	if err := state.Transition(task.PhaseFailed); err != nil {
		// Should be unreachable: failed is reachable from every
		// non-terminal driving phase.
		e.logger.Error("fail_transition_rejected",
			"task_id", state.TaskID, "phase", string(state.Phase), "error", err)
		return
	}
	state.AppendHistory(task.ActorFinalResult, cause.Error())
	*events = append(*events, e.finalResultEvent(state, cause.Error()))
	e.logger.Warn("task_failed", "task_id", state.TaskID, "error", cause.Error())
}

// finalResultEvent builds the single terminal event for a task.
func (e *Engine) finalResultEvent(state *task.State, errText string) channel.Event {
	payload := map[string]any{
		"terminal_status": state.TerminalStatus(),
		"iteration_count": state.IterationCount,
	}
	if state.StepResult != "" {
		payload["step_result"] = state.StepResult
	}
	if errText != "" {
		payload["error"] = errText
	}
	return channel.Event{
		TaskID:  state.TaskID,
		Type:    channel.EventFinalResult,
		Payload: payload,
	}
}

// finish saves the advanced state and, only if the save won the version
// race, emits the collected events.
func (e *Engine) finish(
	ctx context.Context,
	span trace.Span,
	state *task.State,
	version uint64,
	events []channel.Event,
	entryPhase string,
	started time.Time,
) (*task.State, error) {
	if _, err := e.store.Save(ctx, state, version); err != nil {
		span.SetStatus(codes.Error, err.Error())
		status := "error"
		if task.IsConcurrentModification(err) {
			status = "conflict"
		}
		observability.RecordAdvance(entryPhase, status, durationMS(started))
		return nil, err
	}
	e.emit(ctx, events)

	if state.Phase.IsTerminal() {
		observability.RecordTaskCompleted(state.TerminalStatus())
	}
	observability.RecordAdvance(entryPhase, "success", durationMS(started))
	e.logger.Info("task_advanced",
		"task_id", state.TaskID, "entry_phase", entryPhase,
		"phase", string(state.Phase), "iteration_count", state.IterationCount)
	return state, nil
}

// emit publishes events in order. Channel failures are logged, never
// propagated: delivery is fire-and-forget relative to task execution.
func (e *Engine) emit(ctx context.Context, events []channel.Event) {
	for _, event := range events {
		if _, err := e.channel.Emit(ctx, event); err != nil {
			e.logger.Error("event_emit_failed",
				"task_id", event.TaskID, "type", string(event.Type), "error", err)
		}
	}
}

func durationMS(started time.Time) int {
	return int(time.Since(started) / time.Millisecond)
}
