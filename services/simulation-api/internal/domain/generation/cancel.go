package generation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/provider"
)

// cancelActiveRuns cancels every queued, in-progress or requires-action run on
// the thread, then waits for the cancellations to settle. It is best effort:
// provider errors and a settle timeout are logged and the caller proceeds.
// Only ctx cancellation is returned.
func (g *Generator) cancelActiveRuns(ctx context.Context, log zerolog.Logger, req Request) error {
	threadID := req.Run.ThreadID

	runs, err := g.client.ListRecentRuns(ctx, threadID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("could not list runs before generation")
		return nil
	}

	cancelled := 0
	for _, run := range runs {
		if !run.Status.Cancellable() {
			continue
		}
		if err := g.client.CancelRun(ctx, threadID, run.ID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("run_id", run.ID).Str("status", string(run.Status)).Msg("failed to cancel run")
			continue
		}
		cancelled++
		log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).Msg("cancelled active run")
	}
	if cancelled == 0 {
		return nil
	}
	g.inst.RunsCancelled(req.Role, cancelled)

	if err := sleep(ctx, g.cfg.SettleDelay); err != nil {
		return err
	}
	for poll := 0; poll < g.cfg.SettlePolls; poll++ {
		runs, err := g.client.ListRecentRuns(ctx, threadID)
		if err == nil && !anyActive(runs) {
			return nil
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := sleep(ctx, g.cfg.SettleInterval); err != nil {
			return err
		}
	}

	g.inst.SettleTimedOut(req.Role)
	log.Warn().
		Int("polls", g.cfg.SettlePolls).
		Msg("runs still active after cancellation, proceeding anyway")
	return nil
}

func anyActive(runs []provider.Run) bool {
	for _, r := range runs {
		if r.Status.Active() {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
