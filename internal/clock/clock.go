// Package clock abstracts wall time so waits can be driven by tests.
package clock

import (
	"context"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithDeadline returns a copy of ctx that is cancelled once c reaches at.
// Clocks that keep their own time, like Manual, provide the deadline
// themselves; anything else falls back to context.WithDeadline.
func WithDeadline(ctx context.Context, c Clock, at time.Time) (context.Context, context.CancelFunc) {
	if d, ok := c.(interface {
		WithDeadline(context.Context, time.Time) (context.Context, context.CancelFunc)
	}); ok {
		return d.WithDeadline(ctx, at)
	}
	return context.WithDeadline(ctx, at)
}

func WithTimeout(ctx context.Context, c Clock, d time.Duration) (context.Context, context.CancelFunc) {
	return WithDeadline(ctx, c, c.Now().Add(d))
}

// Manual is a clock that only moves when slept on or advanced.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*timer

	// OnSleep runs after each Sleep has advanced the clock.
	OnSleep func(now time.Time)
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.sleeps = append(m.sleeps, d)
	now, hook := m.now, m.OnSleep
	due := m.due()
	m.mu.Unlock()
	expire(due)
	if hook != nil {
		hook(now)
	}
	return ctx.Err()
}

// Advance moves the clock forward, expiring any deadline it passes.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	due := m.due()
	m.mu.Unlock()
	expire(due)
}

type timer struct {
	at     time.Time
	cancel context.CancelCauseFunc
}

// WithDeadline returns a context that expires once the clock has moved past
// at. The context's cause is context.DeadlineExceeded.
func (m *Manual) WithDeadline(ctx context.Context, at time.Time) (context.Context, context.CancelFunc) {
	dctx, cancel := context.WithCancelCause(ctx)
	t := &timer{at: at, cancel: cancel}

	m.mu.Lock()
	if m.now.After(at) {
		m.mu.Unlock()
		cancel(context.DeadlineExceeded)
		return dctx, func() { cancel(context.Canceled) }
	}
	m.timers = append(m.timers, t)
	m.mu.Unlock()

	return dctx, func() {
		m.mu.Lock()
		for i, o := range m.timers {
			if o == t {
				m.timers = append(m.timers[:i], m.timers[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		cancel(context.Canceled)
	}
}

// due removes and returns the timers the clock has passed. m.mu must be held.
func (m *Manual) due() []*timer {
	var fired []*timer
	kept := m.timers[:0]
	for _, t := range m.timers {
		if m.now.After(t.at) {
			fired = append(fired, t)
		} else {
			kept = append(kept, t)
		}
	}
	m.timers = kept
	return fired
}

func expire(ts []*timer) {
	for _, t := range ts {
		t.cancel(context.DeadlineExceeded)
	}
}

// Sleeps returns every duration passed to Sleep so far.
func (m *Manual) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleeps...)
}
