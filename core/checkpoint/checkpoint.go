// Package checkpoint provides the human-in-the-loop checkpoint primitives.
//
// A checkpoint suspends a task by persisting a waiting phase; no goroutine
// is parked on it. Entering produces the request to surface to the human,
// resuming validates the submitted input against the suspended phase.
//
// Features:
//   - Approval checkpoint: binary proceed/stop, decision recorded write-once
//   - Clarification checkpoint: free-form answer, overwritten per pass
//   - Phase verification on resume (duplicate and out-of-order submissions
//     are rejected without mutating state)
package checkpoint

import (
	"context"
	"fmt"

	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/core/task"
)

// =============================================================================
// Checkpoint Kinds
// =============================================================================

// Kind identifies a checkpoint type.
type Kind string

const (
	// KindApproval is the pre-execution approval gate.
	KindApproval Kind = "approval"
	// KindClarification is the post-execution clarification gate.
	KindClarification Kind = "clarification"
)

// WaitingPhase returns the task phase this checkpoint suspends in.
func (k Kind) WaitingPhase() task.Phase {
	switch k {
	case KindApproval:
		return task.PhaseAwaitingApproval
	case KindClarification:
		return task.PhaseAwaitingClarification
	default:
		return ""
	}
}

// =============================================================================
// Request
// =============================================================================

// Request describes a pending checkpoint to surface to the human.
type Request struct {
	Kind   Kind   `json:"kind"`
	TaskID string `json:"task_id"`
	Prompt string `json:"prompt"`
}

// =============================================================================
// Logger
// =============================================================================

// Logger is the logging interface used by the checkpoint service.
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
// Checkpoint Service
// =============================================================================

// Service manages checkpoint entry and resumption over the state store.
type Service struct {
	store  store.Store
	logger Logger
}

// NewService creates a new checkpoint Service.
func NewService(st store.Store, logger Logger) *Service {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Service{store: st, logger: logger}
}

// Enter suspends the task at the given checkpoint: transitions the state
// to the waiting phase and records the request in history. The caller
// (the engine) persists the state and emits the corresponding event.
// Never blocks; suspension is purely structural.
func (s *Service) Enter(state *task.State, kind Kind, prompt string) (*Request, error) {
	waiting := kind.WaitingPhase()
	if waiting == "" {
		return nil, fmt.Errorf("unknown checkpoint kind %q", kind)
	}
	if err := state.Transition(waiting); err != nil {
		return nil, err
	}

	actor := task.ActorApprovalRequest
	if kind == KindClarification {
		actor = task.ActorClarificationRequest
	}
	state.AppendHistory(actor, prompt)

	s.logger.Debug("checkpoint_entered",
		"task_id", state.TaskID, "kind", string(kind))
	return &Request{Kind: kind, TaskID: state.TaskID, Prompt: prompt}, nil
}

// ResumeApproval loads the task, verifies it is suspended at the approval
// checkpoint, and records the decision. The decision is write-once; the
// phase check makes a duplicate submission fail before any mutation.
func (s *Service) ResumeApproval(ctx context.Context, taskID string, decision task.ApprovalDecision) (*task.State, uint64, error) {
	if decision != task.ApprovalApproved && decision != task.ApprovalRejected {
		return nil, 0, fmt.Errorf("invalid approval decision %q", decision)
	}

	state, version, err := s.store.Load(ctx, taskID)
	if err != nil {
		return nil, 0, err
	}
	if state.Phase != task.PhaseAwaitingApproval {
		return nil, 0, task.NewUnexpectedPhaseError(taskID, task.PhaseAwaitingApproval, state.Phase)
	}
	if state.ApprovalDecision != task.ApprovalUnset {
		return nil, 0, task.NewUnexpectedPhaseError(taskID, task.PhaseAwaitingApproval, state.Phase)
	}

	state.ApprovalDecision = decision
	state.AppendHistory(task.ActorUser, string(decision))

	s.logger.Info("checkpoint_resumed",
		"task_id", taskID, "kind", string(KindApproval), "decision", string(decision))
	return state, version, nil
}

// ResumeClarification loads the task, verifies it is suspended at the
// clarification checkpoint, and records the answer. Unlike the approval
// decision, the answer is overwritten on every revision pass.
func (s *Service) ResumeClarification(ctx context.Context, taskID, answer string) (*task.State, uint64, error) {
	state, version, err := s.store.Load(ctx, taskID)
	if err != nil {
		return nil, 0, err
	}
	if state.Phase != task.PhaseAwaitingClarification {
		return nil, 0, task.NewUnexpectedPhaseError(taskID, task.PhaseAwaitingClarification, state.Phase)
	}

	state.LastClarificationAnswer = answer
	state.AppendHistory(task.ActorUser, answer)

	s.logger.Info("checkpoint_resumed",
		"task_id", taskID, "kind", string(KindClarification))
	return state, version, nil
}
