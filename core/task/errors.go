package task

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// NotFoundError is returned when no state exists for a task ID.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(taskID string) *NotFoundError {
	return &NotFoundError{TaskID: taskID}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UnexpectedPhaseError is returned when a resume call is inconsistent with
// the task's current phase. Covers duplicate submissions and client desync;
// the task state is never mutated.
type UnexpectedPhaseError struct {
	TaskID   string
	Expected Phase
	Actual   Phase
}

func (e *UnexpectedPhaseError) Error() string {
	return fmt.Sprintf("task %s: expected phase %s, got %s", e.TaskID, e.Expected, e.Actual)
}

// NewUnexpectedPhaseError creates a new UnexpectedPhaseError.
func NewUnexpectedPhaseError(taskID string, expected, actual Phase) *UnexpectedPhaseError {
	return &UnexpectedPhaseError{TaskID: taskID, Expected: expected, Actual: actual}
}

// IsUnexpectedPhase reports whether err is an UnexpectedPhaseError.
func IsUnexpectedPhase(err error) bool {
	var up *UnexpectedPhaseError
	return errors.As(err, &up)
}

// ConcurrentModificationError is returned when an optimistic save loses the
// version race. Callers should re-fetch rather than blindly retry.
type ConcurrentModificationError struct {
	TaskID          string
	ExpectedVersion uint64
	ActualVersion   uint64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("task %s: version conflict (expected %d, store has %d)",
		e.TaskID, e.ExpectedVersion, e.ActualVersion)
}

// NewConcurrentModificationError creates a new ConcurrentModificationError.
func NewConcurrentModificationError(taskID string, expected, actual uint64) *ConcurrentModificationError {
	return &ConcurrentModificationError{TaskID: taskID, ExpectedVersion: expected, ActualVersion: actual}
}

// IsConcurrentModification reports whether err is a ConcurrentModificationError.
func IsConcurrentModification(err error) bool {
	var cm *ConcurrentModificationError
	return errors.As(err, &cm)
}

// IllegalTransitionError is returned when a phase transition violates the
// transition table. Indicates an engine bug, never a caller error.
type IllegalTransitionError struct {
	TaskID string
	From   Phase
	To     Phase
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

// NewIllegalTransitionError creates a new IllegalTransitionError.
func NewIllegalTransitionError(taskID string, from, to Phase) *IllegalTransitionError {
	return &IllegalTransitionError{TaskID: taskID, From: from, To: to}
}

// StepExecutionError wraps a specialized-step collaborator failure. The
// engine absorbs it into the failed phase rather than propagating it.
type StepExecutionError struct {
	TaskID string
	Step   string
	Cause  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("task %s: step %s failed: %v", e.TaskID, e.Step, e.Cause)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Cause
}

// NewStepExecutionError creates a new StepExecutionError.
func NewStepExecutionError(taskID, step string, cause error) *StepExecutionError {
	return &StepExecutionError{TaskID: taskID, Step: step, Cause: cause}
}
