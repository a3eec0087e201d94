package checkpoint

import (
	"context"
	"testing"

	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/core/task"
)

func newService() (*Service, store.Store) {
	st := store.NewMemoryStore()
	return NewService(st, nil), st
}

func suspendedTask(t *testing.T, st store.Store, kind Kind) *task.State {
	t.Helper()
	state := task.New("review the invoice", "session-1")
	if kind == KindClarification {
		// Walk the task to executing so the clarification entry is legal.
		if err := state.Transition(task.PhaseAwaitingApproval); err != nil {
			t.Fatalf("transition: %v", err)
		}
		state.ApprovalDecision = task.ApprovalApproved
		if err := state.Transition(task.PhaseExecuting); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	return state
}

func TestEnterApproval(t *testing.T) {
	svc, _ := newService()
	state := task.New("review the invoice", "session-1")

	req, err := svc.Enter(state, KindApproval, "Plan: review the invoice. Approve?")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if state.Phase != task.PhaseAwaitingApproval {
		t.Errorf("phase = %q, want awaiting_approval", state.Phase)
	}
	if req.Kind != KindApproval || req.TaskID != state.TaskID {
		t.Errorf("unexpected request: %+v", req)
	}
	if n := len(state.History); n != 1 || state.History[0].Actor != task.ActorApprovalRequest {
		t.Errorf("history not recorded: %+v", state.History)
	}
}

func TestEnterClarification(t *testing.T) {
	svc, st := newService()
	state := suspendedTask(t, st, KindClarification)

	req, err := svc.Enter(state, KindClarification, "Does this look right?")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if state.Phase != task.PhaseAwaitingClarification {
		t.Errorf("phase = %q, want awaiting_clarification", state.Phase)
	}
	if req.Prompt != "Does this look right?" {
		t.Errorf("prompt = %q", req.Prompt)
	}
}

func TestEnterRejectsIllegalTransition(t *testing.T) {
	svc, _ := newService()
	state := task.New("anything", "session-1")

	// planning -> awaiting_clarification is not in the transition table.
	if _, err := svc.Enter(state, KindClarification, "?"); err == nil {
		t.Error("illegal checkpoint entry accepted")
	}
	if state.Phase != task.PhasePlanning {
		t.Errorf("failed entry mutated phase to %q", state.Phase)
	}

	if _, err := svc.Enter(state, Kind("unknown"), "?"); err == nil {
		t.Error("unknown checkpoint kind accepted")
	}
}

func TestResumeApproval(t *testing.T) {
	ctx := context.Background()
	svc, st := newService()

	state := task.New("review the invoice", "session-1")
	if _, err := svc.Enter(state, KindApproval, "Approve?"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	version, err := st.Save(ctx, state, 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	resumed, loadedVersion, err := svc.ResumeApproval(ctx, state.TaskID, task.ApprovalApproved)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if loadedVersion != version {
		t.Errorf("version = %d, want %d", loadedVersion, version)
	}
	if resumed.ApprovalDecision != task.ApprovalApproved {
		t.Errorf("decision = %q", resumed.ApprovalDecision)
	}
	last := resumed.History[len(resumed.History)-1]
	if last.Actor != task.ActorUser || last.Text != "approved" {
		t.Errorf("history entry = %+v", last)
	}
}

func TestResumeApprovalValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	if _, _, err := svc.ResumeApproval(ctx, "task_x", task.ApprovalUnset); err == nil {
		t.Error("unset decision accepted")
	}
	if _, _, err := svc.ResumeApproval(ctx, "task_x", task.ApprovalDecision("maybe")); err == nil {
		t.Error("unknown decision accepted")
	}
}

func TestResumeApprovalWrongPhase(t *testing.T) {
	ctx := context.Background()
	svc, st := newService()

	state := task.New("review the invoice", "session-1")
	if _, err := st.Save(ctx, state, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Still planning: nothing to resume.
	if _, _, err := svc.ResumeApproval(ctx, state.TaskID, task.ApprovalApproved); !task.IsUnexpectedPhase(err) {
		t.Errorf("resume in planning = %v, want UnexpectedPhaseError", err)
	}

	if _, _, err := svc.ResumeApproval(ctx, "task_unknown", task.ApprovalApproved); !task.IsNotFound(err) {
		t.Errorf("resume unknown task = %v, want NotFoundError", err)
	}
}

func TestResumeClarification(t *testing.T) {
	ctx := context.Background()
	svc, st := newService()

	state := suspendedTask(t, st, KindClarification)
	if _, err := svc.Enter(state, KindClarification, "OK?"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := st.Save(ctx, state, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	resumed, _, err := svc.ResumeClarification(ctx, state.TaskID, "no, redo the totals")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.LastClarificationAnswer != "no, redo the totals" {
		t.Errorf("answer = %q", resumed.LastClarificationAnswer)
	}
}

func TestResumeClarificationWrongPhase(t *testing.T) {
	ctx := context.Background()
	svc, st := newService()

	state := task.New("anything", "session-1")
	if _, err := svc.Enter(state, KindApproval, "Approve?"); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := st.Save(ctx, state, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, _, err := svc.ResumeClarification(ctx, state.TaskID, "yes"); !task.IsUnexpectedPhase(err) {
		t.Errorf("clarify while awaiting approval = %v, want UnexpectedPhaseError", err)
	}
}
