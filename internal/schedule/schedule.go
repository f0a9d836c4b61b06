// Package schedule computes when a run wakes up and blocks until then.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/yoyaku-dash/internal/clock"
)

// Opening is the daily instant the booking window opens.
type Opening struct {
	hour, minute int
	loc          *time.Location
	spec         cron.Schedule
}

// ParseOpening parses a local "HH:MM" opening time in loc.
func ParseOpening(hhmm string, loc *time.Location) (Opening, error) {
	if loc == nil {
		return Opening{}, fmt.Errorf("opening time %q: location required", hhmm)
	}
	hh, mm, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return Opening{}, fmt.Errorf("invalid opening time %q (want HH:MM)", hhmm)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Opening{}, fmt.Errorf("invalid opening hour in %q", hhmm)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Opening{}, fmt.Errorf("invalid opening minute in %q", hhmm)
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", m, h))
	if err != nil {
		return Opening{}, err
	}
	if spec, ok := sched.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}
	return Opening{hour: h, minute: m, loc: loc, spec: sched}, nil
}

func (o Opening) Location() *time.Location { return o.loc }

// IsZero reports whether o was never parsed.
func (o Opening) IsZero() bool { return o.spec == nil }

func (o Opening) String() string {
	return fmt.Sprintf("%02d:%02d %s", o.hour, o.minute, o.loc)
}

// Next returns the first opening strictly after now, in the opening's zone.
// At or past today's opening it is tomorrow's.
func (o Opening) Next(now time.Time) time.Time {
	return o.spec.Next(now).In(o.loc)
}

// Schedule holds the deadlines of one run.
type Schedule struct {
	TargetOpen time.Time
	LoginStart time.Time
	DashStart  time.Time
}

// Compute derives a run's deadlines from now.
func Compute(now time.Time, o Opening, loginLead, dashLead time.Duration) Schedule {
	target := o.Next(now)
	return Schedule{
		TargetOpen: target,
		LoginStart: target.Add(-loginLead),
		DashStart:  target.Add(-dashLead),
	}
}

// StepFunc picks how long to sleep given the time remaining.
type StepFunc func(remaining time.Duration) time.Duration

// Tiered sleeps coarse while more than threshold remains, then fine.
func Tiered(coarse, fine, threshold time.Duration) StepFunc {
	return func(remaining time.Duration) time.Duration {
		if remaining > threshold {
			return coarse
		}
		return fine
	}
}

// Every sleeps d on each tick.
func Every(d time.Duration) StepFunc {
	return func(time.Duration) time.Duration { return d }
}

// TickFunc runs once per tick before sleeping.
type TickFunc func(ctx context.Context, remaining time.Duration) error

// Until blocks until deadline, resampling the clock each tick. Cancellation
// of ctx is observed once per tick.
func Until(ctx context.Context, c clock.Clock, deadline time.Time, step StepFunc, onTick TickFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := deadline.Sub(c.Now())
		if remaining <= 0 {
			return nil
		}
		if onTick != nil {
			if err := onTick(ctx, remaining); err != nil {
				return err
			}
		}
		if err := c.Sleep(ctx, step(remaining)); err != nil {
			return err
		}
	}
}
