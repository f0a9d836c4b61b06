package booking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/locator"
)

// dash reloads the top page until the reserve button shows up, then clicks
// it. A failed lookup or click counts as "not there yet"; a failed reload is
// fatal. The loop gives up DashCeiling after opening, including while a
// lookup or reload is still waiting on the site.
func (r *run) dash(ctx context.Context) error {
	r.enter(PhaseDash, "polling for the reserve button")
	button := locator.ReserveButton()

	ceiling := r.sched.TargetOpen.Add(r.cfg.DashCeiling)
	dashCtx, cancel := clock.WithDeadline(ctx, r.clock, ceiling)
	defer cancel()
	gaveUp := func() error {
		late := r.clock.Now().Sub(r.sched.TargetOpen)
		return fmt.Errorf("%w: gave up %s after opening (%d reloads)", ErrButtonNeverAppeared, late.Truncate(time.Second), r.res.Reloads)
	}
	expired := func() bool { return dashCtx.Err() != nil && ctx.Err() == nil }

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		found, err := r.sess.Find(dashCtx, button)
		if err != nil {
			r.log.Debug("reserve button lookup failed", zap.Int("reloads", r.res.Reloads), zap.Error(err))
		}
		if found && err == nil {
			err := r.sess.Click(dashCtx, button)
			if err == nil {
				r.emit(KindInfo, "reserve button clicked after %d reloads", r.res.Reloads)
				return nil
			}
			r.log.Debug("reserve button click failed", zap.Int("reloads", r.res.Reloads), zap.Error(err))
		}

		if err := r.sess.Reload(dashCtx); err != nil {
			if expired() {
				return gaveUp()
			}
			return fmt.Errorf("reload: %w", err)
		}
		r.res.Reloads++
		if err := r.clock.Sleep(ctx, r.cfg.ReloadPause); err != nil {
			return err
		}

		if r.clock.Now().Sub(r.sched.TargetOpen) > r.cfg.DashCeiling {
			return gaveUp()
		}
	}
}
