// Package step provides the specialized step collaborators - the workers
// the engine dispatches an approved task to.
//
// Steps are pure collaborators: they receive a read-only view of the task
// state plus the latest clarification answer, and return result text. They
// never mutate state, never touch the store, and are invoked at most once
// per entry into the executing phase.
package step

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relay-orchestration/relay-core/core/task"
)

// =============================================================================
// Step Protocol
// =============================================================================

// Step is the contract for a specialized step.
//
// clarificationAnswer is empty on the initial pass and carries the human's
// latest answer on revision passes. Execute must treat state as read-only.
type Step interface {
	// ID returns the step's registry identifier.
	ID() string
	// Execute produces the step's result text for the current pass.
	Execute(ctx context.Context, state *task.State, clarificationAnswer string) (string, error)
}

// Func adapts a function to the Step interface.
type Func struct {
	StepID string
	Fn     func(ctx context.Context, state *task.State, clarificationAnswer string) (string, error)
}

// ID implements Step.
func (f Func) ID() string { return f.StepID }

// Execute implements Step.
func (f Func) Execute(ctx context.Context, state *task.State, clarificationAnswer string) (string, error) {
	return f.Fn(ctx, state, clarificationAnswer)
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds the fixed set of steps available for routing. Steps are
// registered at startup; routing to an unregistered ID is an engine error.
type Registry struct {
	steps map[string]Step
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register adds a step. Re-registering an ID replaces the step.
func (r *Registry) Register(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[s.ID()] = s
}

// Get returns the step for an ID.
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[id]
	if !ok {
		return nil, fmt.Errorf("no step registered for id %q", id)
	}
	return s, nil
}

// IDs returns the registered step IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.steps))
	for id := range r.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// Planner
// =============================================================================

// Planner produces the short planning text shown to the human before the
// approval checkpoint.
type Planner interface {
	Plan(ctx context.Context, state *task.State, selectedStep string) (string, error)
}

// TemplatePlanner is the default deterministic planner.
type TemplatePlanner struct{}

// NewTemplatePlanner creates a new TemplatePlanner.
func NewTemplatePlanner() *TemplatePlanner {
	return &TemplatePlanner{}
}

// Plan implements Planner.
func (p *TemplatePlanner) Plan(ctx context.Context, state *task.State, selectedStep string) (string, error) {
	return fmt.Sprintf("Plan: handle %q with the %s step, then request your review of the result.",
		state.Description, selectedStep), nil
}
