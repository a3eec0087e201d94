// Package task defines the task execution state - the complete context for
// one user-submitted task as it moves through planning, checkpoints, and
// specialized steps.
//
// Key concepts:
//   - Phase: position of the task in its execution state machine
//   - State: the persisted execution context (single writer per task)
//   - History: append-only audit log, authoritative source for event replay
package task

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Phases
// =============================================================================

// Phase represents the lifecycle phase of a task.
// Phase transitions:
//
//	PLANNING -> AWAITING_APPROVAL -> (EXECUTING | REJECTED)
//	EXECUTING -> (AWAITING_CLARIFICATION | FAILED)
//	AWAITING_CLARIFICATION -> (COMPLETED | EXECUTING)  [loop, bounded]
type Phase string

const (
	// PhasePlanning indicates the planner is producing the initial plan.
	PhasePlanning Phase = "planning"
	// PhaseAwaitingApproval indicates the task is suspended at the approval checkpoint.
	PhaseAwaitingApproval Phase = "awaiting_approval"
	// PhaseExecuting indicates a specialized step is being invoked.
	PhaseExecuting Phase = "executing"
	// PhaseAwaitingClarification indicates the task is suspended at the clarification checkpoint.
	PhaseAwaitingClarification Phase = "awaiting_clarification"
	// PhaseCompleted indicates the task finished successfully.
	PhaseCompleted Phase = "completed"
	// PhaseRejected indicates the approval checkpoint aborted the task.
	PhaseRejected Phase = "rejected"
	// PhaseFailed indicates a specialized step failed fatally.
	PhaseFailed Phase = "failed"
)

// IsTerminal returns true if this is a terminal phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseRejected || p == PhaseFailed
}

// IsWaiting returns true if the task is suspended at a checkpoint.
func (p Phase) IsWaiting() bool {
	return p == PhaseAwaitingApproval || p == PhaseAwaitingClarification
}

// =============================================================================
// Valid Phase Transitions
// =============================================================================

// validTransitions defines allowed phase transitions.
var validTransitions = map[Phase]map[Phase]bool{
	PhasePlanning: {
		PhaseAwaitingApproval: true,
		PhaseFailed:           true,
	},
	PhaseAwaitingApproval: {
		PhaseExecuting: true,
		PhaseRejected:  true,
	},
	PhaseExecuting: {
		PhaseAwaitingClarification: true,
		PhaseFailed:                true,
	},
	PhaseAwaitingClarification: {
		PhaseCompleted: true,
		PhaseExecuting: true, // Revision loop, bounded by MaxIterations
	},
	PhaseCompleted: {},
	PhaseRejected:  {},
	PhaseFailed:    {},
}

// IsValidTransition checks if a phase transition is valid.
func IsValidTransition(from, to Phase) bool {
	if targets, ok := validTransitions[from]; ok {
		return targets[to]
	}
	return false
}

// =============================================================================
// Approval Decision
// =============================================================================

// ApprovalDecision is the tri-state outcome of the approval checkpoint.
type ApprovalDecision string

const (
	// ApprovalUnset indicates no decision has been submitted yet.
	ApprovalUnset ApprovalDecision = ""
	// ApprovalApproved indicates the task was approved to proceed.
	ApprovalApproved ApprovalDecision = "approved"
	// ApprovalRejected indicates the task was rejected.
	ApprovalRejected ApprovalDecision = "rejected"
)

// =============================================================================
// History
// =============================================================================

// Well-known history actors. Entries recorded under these actors are
// reconstructed into their corresponding event types when a lost channel
// buffer is rebuilt from history.
const (
	ActorPlanner              = "planner"
	ActorApprovalRequest      = "approval_request"
	ActorClarificationRequest = "clarification_request"
	ActorFinalResult          = "final_result"
	ActorUser                 = "user"
	ActorEngine               = "engine"
)

// HistoryEntry is one append-only audit record. History is never truncated
// or reordered; the engine is the single writer per task.
type HistoryEntry struct {
	Actor     string    `json:"actor"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// Task State
// =============================================================================

// State is the complete execution context for one task.
//
// State is mutated exclusively by the execution engine under the store's
// optimistic version check. Terminal phases are immutable.
type State struct {
	// Identity
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`

	// Original input, immutable after creation.
	Description string `json:"description"`

	// Execution state
	Phase          Phase  `json:"phase"`
	SelectedStep   string `json:"selected_step,omitempty"`
	StepResult     string `json:"step_result,omitempty"`
	IterationCount int    `json:"iteration_count"`

	// Checkpoint inputs
	ApprovalDecision        ApprovalDecision `json:"approval_decision,omitempty"`
	LastClarificationAnswer string           `json:"last_clarification_answer,omitempty"`

	// Truncated is set when the revision loop was cut off at MaxIterations.
	Truncated bool `json:"truncated,omitempty"`

	// Audit trail
	History []HistoryEntry `json:"history"`

	// Timing
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a new State in the planning phase.
func New(description, sessionID string) *State {
	now := time.Now().UTC()
	return &State{
		TaskID:      "task_" + uuid.New().String()[:16],
		SessionID:   sessionID,
		Description: description,
		Phase:       PhasePlanning,
		History:     []HistoryEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the task to a new phase, enforcing the transition table.
func (s *State) Transition(to Phase) error {
	if !IsValidTransition(s.Phase, to) {
		return NewIllegalTransitionError(s.TaskID, s.Phase, to)
	}
	s.Phase = to
	now := time.Now().UTC()
	s.UpdatedAt = now
	if to.IsTerminal() {
		s.CompletedAt = &now
	}
	return nil
}

// AppendHistory records an audit entry. In-order, single writer per task.
func (s *State) AppendHistory(actor, text string) {
	s.History = append(s.History, HistoryEntry{
		Actor:     actor,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}

// LastActivity returns the timestamp of the most recent history entry,
// falling back to UpdatedAt for tasks with no history yet.
func (s *State) LastActivity() time.Time {
	if n := len(s.History); n > 0 {
		return s.History[n-1].Timestamp
	}
	return s.UpdatedAt
}

// TerminalStatus returns the externally reported terminal status string,
// distinguishing iteration-limit truncation from normal completion.
func (s *State) TerminalStatus() string {
	switch s.Phase {
	case PhaseCompleted:
		if s.Truncated {
			return "iteration_limit_reached"
		}
		return "completed"
	case PhaseRejected:
		return "rejected"
	case PhaseFailed:
		return "failed"
	default:
		return ""
	}
}

// Clone creates a deep copy of the state.
func (s *State) Clone() *State {
	clone := *s
	clone.History = make([]HistoryEntry, len(s.History))
	copy(clone.History, s.History)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// ToStatusDict converts the state to a status dictionary for API responses.
func (s *State) ToStatusDict() map[string]any {
	status := map[string]any{
		"task_id":         s.TaskID,
		"session_id":      s.SessionID,
		"phase":           string(s.Phase),
		"selected_step":   s.SelectedStep,
		"iteration_count": s.IterationCount,
		"truncated":       s.Truncated,
		"history_len":     len(s.History),
		"created_at":      s.CreatedAt.Format(time.RFC3339),
		"updated_at":      s.UpdatedAt.Format(time.RFC3339),
	}
	if s.StepResult != "" {
		status["step_result"] = s.StepResult
	}
	if s.ApprovalDecision != ApprovalUnset {
		status["approval_decision"] = string(s.ApprovalDecision)
	}
	if s.Phase.IsTerminal() {
		status["terminal_status"] = s.TerminalStatus()
	}
	if s.CompletedAt != nil {
		status["completed_at"] = s.CompletedAt.Format(time.RFC3339)
	}
	return status
}
