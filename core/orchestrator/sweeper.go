// Stale checkpoint policy.
//
// Checkpoints themselves have no timeout: a suspended task holds no
// resources and can wait for days. Deployments that want an upper bound
// run the Sweeper, which resolves overdue checkpoints with synthetic
// inputs through the same facade operations a human would use:
//   - overdue approvals are rejected
//   - overdue clarifications are affirmed (accept the current result)
package orchestrator

import (
	"context"
	"time"

	"github.com/relay-orchestration/relay-core/core/task"
)

// Sweeper resolves checkpoints whose last activity exceeds a TTL.
type Sweeper struct {
	orch             *Orchestrator
	approvalTTL      time.Duration
	clarificationTTL time.Duration
	affirmAnswer     string
	logger           Logger
	now              func() time.Time
}

// NewSweeper creates a Sweeper over the orchestrator's configured TTLs.
func NewSweeper(orch *Orchestrator) *Sweeper {
	// The synthetic answer must be one of the configured affirmative
	// tokens; any other answer starts a revision pass instead of
	// resolving the checkpoint.
	affirm := "yes"
	if len(orch.cfg.AffirmativeTokens) > 0 {
		affirm = orch.cfg.AffirmativeTokens[0]
	}
	return &Sweeper{
		orch:             orch,
		approvalTTL:      orch.cfg.ApprovalTTL,
		clarificationTTL: orch.cfg.ClarificationTTL,
		affirmAnswer:     affirm,
		logger:           orch.logger,
		now:              time.Now,
	}
}

// Sweep runs one pass over all stored tasks and resolves overdue
// checkpoints. Returns the number of tasks resolved. Version conflicts
// and phase mismatches are skipped silently: they mean a human raced the
// sweep and won, which is the preferred outcome.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.orch.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	resolved := 0
	for _, id := range ids {
		state, _, err := s.orch.store.Load(ctx, id)
		if err != nil {
			continue
		}
		if !state.Phase.IsWaiting() {
			continue
		}

		age := now.Sub(state.LastActivity())
		switch state.Phase {
		case task.PhaseAwaitingApproval:
			if age < s.approvalTTL {
				continue
			}
			_, err = s.orch.SubmitApproval(ctx, id, false)
		case task.PhaseAwaitingClarification:
			if age < s.clarificationTTL {
				continue
			}
			_, err = s.orch.SubmitClarification(ctx, id, s.affirmAnswer)
		}

		if err != nil {
			if task.IsUnexpectedPhase(err) || task.IsConcurrentModification(err) {
				continue
			}
			s.logger.Warn("sweep_resolve_failed", "task_id", id, "error", err)
			continue
		}
		resolved++
		s.logger.Info("stale_checkpoint_resolved",
			"task_id", id, "phase", string(state.Phase), "age_seconds", int(age.Seconds()))
	}
	return resolved, nil
}

// Start runs Sweep on a fixed interval. Returns a stop function.
func (s *Sweeper) Start(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(context.Background()); err != nil {
					s.logger.Error("sweep_failed", "error", err)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
