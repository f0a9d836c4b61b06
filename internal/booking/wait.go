package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/yoyaku-dash/internal/schedule"
)

// waitForLogin sleeps until the login lead time, coarsely while far away.
func (r *run) waitForLogin(ctx context.Context) error {
	step := schedule.Tiered(r.cfg.CoarseTick, r.cfg.FineTick, r.cfg.FineBelow)
	return schedule.Until(ctx, r.clock, r.sched.LoginStart, step, func(_ context.Context, remaining time.Duration) error {
		r.countdown(remaining, "browser starts in %s", remaining.Truncate(time.Second))
		return nil
	})
}

// hold keeps the primed session alive until the dash starts. Reading the
// current URL every tick stops the site expiring an idle session.
func (r *run) hold(ctx context.Context) error {
	r.enter(PhaseHold, "session ready, waiting for %s", r.sched.TargetOpen.Format("15:04:05"))
	return schedule.Until(ctx, r.clock, r.sched.DashStart, schedule.Every(r.cfg.FineTick), func(ctx context.Context, _ time.Duration) error {
		toOpen := r.sched.TargetOpen.Sub(r.clock.Now())
		r.countdown(toOpen, "booking opens in %ds", int(toOpen.Seconds()))
		if _, err := r.sess.CurrentURL(ctx); err != nil {
			return fmt.Errorf("keep session alive: %w", err)
		}
		return nil
	})
}
