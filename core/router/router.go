// Package router provides pure routing decisions - step selection and
// checkpoint outcome evaluation. No I/O, no state mutation; every function
// is deterministic in its inputs so decisions are trivially testable.
package router

import (
	"strings"

	"github.com/relay-orchestration/relay-core/core/config"
	"github.com/relay-orchestration/relay-core/core/task"
)

// =============================================================================
// Clarification Outcome
// =============================================================================

// ClarificationOutcome is the decision taken after a clarification answer.
type ClarificationOutcome string

const (
	// OutcomeTerminate finishes the task with the current step result.
	OutcomeTerminate ClarificationOutcome = "terminate"
	// OutcomeRevise re-invokes the selected step with the answer.
	OutcomeRevise ClarificationOutcome = "revise"
)

// =============================================================================
// Router
// =============================================================================

// Router evaluates routing rules and checkpoint decisions.
type Router struct {
	rules             []config.RoutingRule
	defaultStep       string
	affirmativeTokens map[string]bool
	maxIterations     int
}

// New creates a Router from orchestration config.
func New(cfg *config.CoreConfig) *Router {
	tokens := make(map[string]bool, len(cfg.AffirmativeTokens))
	for _, t := range cfg.AffirmativeTokens {
		tokens[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &Router{
		rules:             cfg.RoutingRules,
		defaultStep:       cfg.DefaultStep,
		affirmativeTokens: tokens,
		maxIterations:     cfg.MaxIterations,
	}
}

// SelectStep maps a task to a step ID. First matching rule wins; the
// match corpus is the description plus, on revision passes, the latest
// step result and clarification answer. Unmatched tasks go to the
// default step.
func (r *Router) SelectStep(state *task.State) string {
	corpus := strings.ToLower(state.Description)
	if state.IterationCount > 0 {
		corpus += " " + strings.ToLower(state.StepResult)
		corpus += " " + strings.ToLower(state.LastClarificationAnswer)
	}

	for _, rule := range r.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(corpus, strings.ToLower(keyword)) {
				return rule.Step
			}
		}
	}
	return r.defaultStep
}

// DecideApproval reports whether the task proceeds to execution.
// Anything but an explicit approval stops the task.
func (r *Router) DecideApproval(decision task.ApprovalDecision) bool {
	return decision == task.ApprovalApproved
}

// DecideClarification evaluates a clarification answer against the
// affirmative token set. iterationCount is the count BEFORE this
// revision; hitting the cap forces termination regardless of the answer.
func (r *Router) DecideClarification(answer string, iterationCount int) ClarificationOutcome {
	if r.affirmativeTokens[strings.ToLower(strings.TrimSpace(answer))] {
		return OutcomeTerminate
	}
	if iterationCount >= r.maxIterations {
		return OutcomeTerminate
	}
	return OutcomeRevise
}

// MaxIterations returns the configured revision cap.
func (r *Router) MaxIterations() int {
	return r.maxIterations
}
