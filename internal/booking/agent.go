// Package booking claims a clinic appointment the moment booking opens.
//
// A run has four phases, each completing before the next begins:
//
//  1. sleep until shortly before opening,
//  2. launch a browser and log in as the subject,
//  3. keep the session alive, then reload until the reserve button appears,
//  4. walk the booking form for the requested time.
//
// The final reserve click is gated by Settings.CommitEnabled.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/domain/clinic"
	"github.com/example/yoyaku-dash/internal/schedule"
)

// Request is what the caller wants booked.
type Request struct {
	Subject clinic.Subject
	Slot    clinic.Slot
}

func (r Request) Validate() error {
	if r.Subject.Code == "" {
		return errors.New("subject code required")
	}
	return r.Slot.Validate()
}

// Result describes a finished run, successful or not.
type Result struct {
	Schedule    schedule.Schedule
	Prime       PrimeResult
	Reloads     int
	Committed   bool
	Screenshots []Screenshot
}

// Agent performs booking runs. Logger, Clock and Reporter may be nil.
type Agent struct {
	Launcher Launcher
	Settings Settings
	Clock    clock.Clock
	Logger   *zap.Logger
	Reporter Reporter
}

// run is the state of one execution, handed to every phase.
type run struct {
	req   Request
	cfg   Settings
	clock clock.Clock
	log   *zap.Logger
	rep   Reporter

	phase Phase
	sched schedule.Schedule
	sess  Session
	res   *Result
}

// Run books req, blocking until the run ends. Cancelling ctx aborts the run
// at the next tick; the browser is always closed before Run returns.
func (a *Agent) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	if err := req.Validate(); err != nil {
		return res, err
	}
	if a.Launcher == nil {
		return res, errors.New("booking: no browser launcher")
	}
	cfg := a.Settings.withDefaults()
	if cfg.Opening.IsZero() {
		return res, errors.New("booking: opening time not configured")
	}

	r := &run{
		req:   req,
		cfg:   cfg,
		clock: a.Clock,
		log:   a.Logger,
		rep:   a.Reporter,
		res:   &res,
	}
	if r.clock == nil {
		r.clock = clock.System{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.rep == nil {
		r.rep = nopReporter{}
	}
	r.log = r.log.With(zap.String("subject", req.Subject.Code), zap.Stringer("slot", req.Slot))

	err := r.execute(ctx, a.Launcher)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w during %s: %w", ErrAborted, r.phase, err)
		}
		r.log.Error("run failed", zap.String("phase", string(r.phase)), zap.Error(err))
		r.emit(KindError, "%v", err)
		return res, err
	}
	return res, nil
}

func (r *run) execute(ctx context.Context, launcher Launcher) (err error) {
	r.sched = schedule.Compute(r.clock.Now(), r.cfg.Opening, r.cfg.LoginLead, r.cfg.DashLead)
	r.res.Schedule = r.sched

	r.enter(PhaseWaitLogin, "armed: login at %s, booking opens at %s",
		r.sched.LoginStart.Format("01/02 15:04"), r.sched.TargetOpen.Format("01/02 15:04"))
	if err := r.waitForLogin(ctx); err != nil {
		return err
	}

	r.enter(PhasePrime, "launching browser")
	sess, err := launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	r.sess = sess
	defer r.teardown()
	defer func() {
		if err != nil {
			r.capture(ctx, CaptionError)
		}
	}()

	if err := r.prime(ctx); err != nil {
		return err
	}
	if err := r.hold(ctx); err != nil {
		return err
	}
	if err := r.dash(ctx); err != nil {
		return err
	}
	if err := r.traverse(ctx); err != nil {
		return err
	}

	r.phase = PhaseDone
	if r.res.Committed {
		r.emit(KindSuccess, "booking submitted for %s at %s", r.req.Subject.Name, r.req.Slot)
	} else {
		r.emit(KindSuccess, "dry run finished for %s at %s: final reserve button reached but not clicked", r.req.Subject.Name, r.req.Slot)
	}
	_ = r.clock.Sleep(ctx, r.cfg.SettleDelay)
	r.capture(ctx, CaptionResult)
	return nil
}

func (r *run) teardown() {
	if err := r.sess.Close(); err != nil {
		r.log.Warn("browser close failed", zap.Error(err))
	}
}

// capture grabs the current page even when ctx has been cancelled.
func (r *run) capture(ctx context.Context, caption string) {
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	png, err := r.sess.Screenshot(shotCtx)
	if err != nil {
		r.log.Warn("screenshot failed", zap.String("caption", caption), zap.Error(err))
		return
	}
	shot := Screenshot{At: r.clock.Now(), Caption: caption, PNG: png}
	r.res.Screenshots = append(r.res.Screenshots, shot)
	r.rep.Capture(shot)
}

func (r *run) enter(p Phase, format string, args ...any) {
	r.phase = p
	r.emit(KindInfo, format, args...)
}

func (r *run) emit(kind Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	switch kind {
	case KindWarning:
		r.log.Warn(msg, zap.String("phase", string(r.phase)))
	case KindError:
		// logged by Run with the error attached
	default:
		r.log.Info(msg, zap.String("phase", string(r.phase)))
	}
	r.rep.Report(Event{At: r.clock.Now(), Phase: r.phase, Kind: kind, Message: msg})
}

func (r *run) countdown(remaining time.Duration, format string, args ...any) {
	r.rep.Report(Event{
		At:        r.clock.Now(),
		Phase:     r.phase,
		Kind:      KindCountdown,
		Message:   fmt.Sprintf(format, args...),
		Remaining: remaining,
	})
}
