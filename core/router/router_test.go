package router

import (
	"testing"

	"github.com/relay-orchestration/relay-core/core/config"
	"github.com/relay-orchestration/relay-core/core/task"
)

func newTestRouter() *Router {
	return New(config.DefaultCoreConfig())
}

func TestSelectStepKeywordMatch(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		description string
		want        string
	}{
		{"please review the Q3 INVOICE", "invoice_review"},
		{"draft a weekly report", "report_drafting"},
		{"find the customer record", "data_lookup"},
		{"water my plants", "general_assistant"},
	}
	for _, tt := range tests {
		state := task.New(tt.description, "session-1")
		if got := r.SelectStep(state); got != tt.want {
			t.Errorf("SelectStep(%q) = %q, want %q", tt.description, got, tt.want)
		}
	}
}

func TestSelectStepFirstRuleWins(t *testing.T) {
	r := New(&config.CoreConfig{
		MaxIterations: 3,
		DefaultStep:   "fallback",
		RoutingRules: []config.RoutingRule{
			{Keywords: []string{"alpha"}, Step: "first"},
			{Keywords: []string{"alpha", "beta"}, Step: "second"},
		},
	})
	state := task.New("alpha beta", "session-1")
	if got := r.SelectStep(state); got != "first" {
		t.Errorf("SelectStep = %q, want first", got)
	}
}

func TestSelectStepRevisionPassUsesStepContext(t *testing.T) {
	r := newTestRouter()
	state := task.New("help me out", "session-1")
	state.StepResult = "the invoice totals do not match"
	state.LastClarificationAnswer = "check the billing lines again"

	// Before any revision, only the description counts.
	if got := r.SelectStep(state); got != "general_assistant" {
		t.Errorf("initial SelectStep = %q, want general_assistant", got)
	}

	state.IterationCount = 1
	if got := r.SelectStep(state); got != "invoice_review" {
		t.Errorf("revision SelectStep = %q, want invoice_review", got)
	}
}

func TestDecideApproval(t *testing.T) {
	r := newTestRouter()
	if !r.DecideApproval(task.ApprovalApproved) {
		t.Error("approved decision should proceed")
	}
	if r.DecideApproval(task.ApprovalRejected) {
		t.Error("rejected decision should not proceed")
	}
	if r.DecideApproval(task.ApprovalUnset) {
		t.Error("unset decision should not proceed")
	}
}

func TestDecideClarification(t *testing.T) {
	r := newTestRouter()
	tests := []struct {
		answer string
		count  int
		want   ClarificationOutcome
	}{
		{"yes", 0, OutcomeTerminate},
		{"  YES  ", 0, OutcomeTerminate},
		{"LGTM", 1, OutcomeTerminate},
		{"no, fix the totals", 0, OutcomeRevise},
		{"no, fix the totals", 2, OutcomeRevise},
		{"no, fix the totals", 3, OutcomeTerminate},
		{"no, fix the totals", 7, OutcomeTerminate},
	}
	for _, tt := range tests {
		if got := r.DecideClarification(tt.answer, tt.count); got != tt.want {
			t.Errorf("DecideClarification(%q, %d) = %q, want %q", tt.answer, tt.count, got, tt.want)
		}
	}
}
