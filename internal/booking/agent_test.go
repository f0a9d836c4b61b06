package booking_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/browser/browsertest"
	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/domain/clinic"
	"github.com/example/yoyaku-dash/internal/locator"
	"github.com/example/yoyaku-dash/internal/schedule"
)

const loginURL = "https://clinic.test/yoyaku/php/line_login.php"

var jst = time.FixedZone("JST", 9*60*60)

type recorder struct {
	mu     sync.Mutex
	events []booking.Event
	shots  []booking.Screenshot
}

func (r *recorder) Report(e booking.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Capture(s booking.Screenshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shots = append(r.shots, s)
}

func (r *recorder) last() booking.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) has(kind booking.Kind, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

type fixture struct {
	sess     *browsertest.Session
	clock    *clock.Manual
	rec      *recorder
	agent    *booking.Agent
	launches int
	req      booking.Request
}

// newFixture scripts the happy path: login, open after openAfter reloads,
// then the four form screens for 09:00.
func newFixture(t *testing.T, openAfter int) *fixture {
	t.Helper()
	opening, err := schedule.ParseOpening("06:00", jst)
	require.NoError(t, err)

	sess := browsertest.New()
	sess.Pages[loginURL] = browsertest.LoginPage("12979", "10865")
	sess.OnClick["login button"] = []string{browsertest.WaitingPage}
	sess.OnReload = func(n int) (string, bool) {
		if n == openAfter {
			return browsertest.OpenPage(false), true
		}
		return "", false
	}
	sess.OnClick["reserve button"] = []string{
		browsertest.TablePage(browsertest.Row{Label: "9時", Glyph: "〇"}, browsertest.Row{Label: "10時", Glyph: "△"}),
		browsertest.DonePage,
	}
	sess.OnClick["slot 9時"] = []string{
		browsertest.TablePage(browsertest.Row{Label: "9時00分", Glyph: "△"}, browsertest.Row{Label: "9時15分"}),
	}
	sess.OnClick["slot 9時00分"] = []string{browsertest.ConfirmPage}
	sess.OnClick["confirm button"] = []string{browsertest.FinalPage}

	f := &fixture{
		sess:  sess,
		clock: clock.NewManual(time.Date(2026, 10, 19, 5, 0, 0, 0, jst)),
		rec:   &recorder{},
		req: booking.Request{
			Subject: clinic.Subject{Key: "child-a", Name: "お子様A", Code: "12979"},
			Slot:    clinic.Slot{Hour: 9, Minute: 0},
		},
	}
	f.agent = &booking.Agent{
		Launcher: booking.LaunchFunc(func(context.Context) (booking.Session, error) {
			f.launches++
			return sess, nil
		}),
		Settings: booking.Settings{LoginURL: loginURL, Opening: opening},
		Clock:    f.clock,
		Reporter: f.rec,
	}
	return f
}

func (f *fixture) run(ctx context.Context) (booking.Result, error) {
	return f.agent.Run(ctx, f.req)
}

func TestRunDryRunReachesFinalButton(t *testing.T) {
	f := newFixture(t, 10)

	res, err := f.run(context.Background())
	require.NoError(t, err)

	open := time.Date(2026, 10, 19, 6, 0, 0, 0, jst)
	assert.True(t, res.Schedule.TargetOpen.Equal(open))
	assert.True(t, res.Schedule.LoginStart.Equal(open.Add(-10*time.Minute)))
	assert.True(t, res.Schedule.DashStart.Equal(open.Add(-10*time.Second)))

	assert.True(t, res.Prime.Authenticated())
	assert.Equal(t, 10, res.Reloads)
	assert.Equal(t, 10, f.sess.Reloads)
	assert.False(t, res.Committed)
	assert.Equal(t, []string{
		"subject 12979", "login button", "reserve button",
		"slot 9時", "slot 9時00分", "confirm button",
	}, f.sess.Clicks)
	assert.Equal(t, []string{"confirm button"}, f.sess.Scrolls)
	assert.True(t, f.sess.Has(locator.ReserveButton()), "final page left in place")

	assert.Equal(t, 1, f.launches)
	assert.Equal(t, 1, f.sess.Closes)
	require.Len(t, res.Screenshots, 1)
	assert.Equal(t, booking.CaptionResult, res.Screenshots[0].Caption)
	assert.Len(t, f.rec.shots, 1)

	assert.True(t, f.rec.has(booking.KindWarning, "commit disabled"))
	last := f.rec.last()
	assert.Equal(t, booking.KindSuccess, last.Kind)
	assert.Equal(t, booking.PhaseDone, last.Phase)
	assert.Contains(t, last.Message, "dry run")
}

func TestRunCommitsWhenEnabled(t *testing.T) {
	f := newFixture(t, 1)
	f.agent.Settings.CommitEnabled = true

	res, err := f.run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, "reserve button", f.sess.Clicks[len(f.sess.Clicks)-1])
	assert.False(t, f.sess.Has(locator.ReserveButton()))
	assert.Equal(t, 1, f.sess.Closes)
}

func TestCommitDisabledByDefault(t *testing.T) {
	var zero booking.Settings
	assert.False(t, zero.CommitEnabled)

	opening, err := schedule.ParseOpening("06:00", jst)
	require.NoError(t, err)
	def := booking.DefaultSettings(opening)
	assert.False(t, def.CommitEnabled)
	assert.False(t, def.StrictLogin)
	assert.Equal(t, booking.DefaultLoginURL, def.LoginURL)
	assert.Equal(t, 10*time.Minute, def.LoginLead)
	assert.Equal(t, 10*time.Second, def.DashLead)
	assert.Equal(t, time.Minute, def.DashCeiling)
	assert.Equal(t, 30*time.Second, def.NavigateTimeout)
	assert.Equal(t, 500*time.Millisecond, def.ReloadPause)
}

func TestWaitAndHoldTiming(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.run(context.Background())
	require.NoError(t, err)

	var coarse, fine, pause int
	for _, d := range f.clock.Sleeps() {
		switch d {
		case 10 * time.Second:
			coarse++
		case time.Second:
			fine++
		case 500 * time.Millisecond:
			pause++
		}
	}
	// 05:00 to 05:49 in 10s steps, then 1s steps for the last minute before
	// login and the hold from 05:50 to 05:59:50.
	assert.Equal(t, 294, coarse)
	assert.Equal(t, 60+590, fine)
	assert.Equal(t, 1, pause)
	assert.Equal(t, 590, f.sess.URLReads, "one keepalive per hold tick")
}

func TestDashClicksOnLastAllowedCycle(t *testing.T) {
	// 140 half-second cycles from DashStart land exactly 60s past opening.
	f := newFixture(t, 140)

	res, err := f.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 140, res.Reloads)
}

func TestDashGivesUpPastCeiling(t *testing.T) {
	f := newFixture(t, 0)

	res, err := f.run(context.Background())
	require.ErrorIs(t, err, booking.ErrButtonNeverAppeared)
	assert.Equal(t, 141, res.Reloads)

	open := time.Date(2026, 10, 19, 6, 0, 0, 0, jst)
	late := f.clock.Now().Sub(open)
	assert.Greater(t, late, time.Minute)
	assert.LessOrEqual(t, late, time.Minute+500*time.Millisecond)

	assert.NotContains(t, f.sess.Clicks, "reserve button")
	assert.Equal(t, 1, f.sess.Closes)
	require.Len(t, res.Screenshots, 1)
	assert.Equal(t, booking.CaptionError, res.Screenshots[0].Caption)
}

type outcome struct {
	res booking.Result
	err error
}

// runUntilHung starts a run and waits for it to block in the fake browser.
func (f *fixture) runUntilHung(t *testing.T) <-chan outcome {
	t.Helper()
	done := make(chan outcome, 1)
	go func() {
		res, err := f.run(context.Background())
		done <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return f.sess.Hanging() == 1 }, 2*time.Second, time.Millisecond)
	return done
}

func awaitRun(t *testing.T, done <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-done:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
		return outcome{}
	}
}

func TestDashCeilingBoundsHungReload(t *testing.T) {
	f := newFixture(t, 0)
	f.sess.Hang["reload"] = true

	done := f.runUntilHung(t)
	f.clock.Advance(70 * time.Second)
	assert.Equal(t, 1, f.sess.Hanging(), "still within the ceiling at 06:01:00")
	f.clock.Advance(time.Second)

	o := awaitRun(t, done)
	require.ErrorIs(t, o.err, booking.ErrButtonNeverAppeared)
	assert.NotErrorIs(t, o.err, booking.ErrAborted)
	assert.Zero(t, o.res.Reloads)
	assert.Equal(t, 1, f.sess.Closes)
	require.Len(t, o.res.Screenshots, 1)
	assert.Equal(t, booking.CaptionError, o.res.Screenshots[0].Caption)
}

func TestPrimeNavigateTimesOut(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.Hang["navigate"] = true

	done := f.runUntilHung(t)
	f.clock.Advance(31 * time.Second)

	o := awaitRun(t, done)
	require.ErrorIs(t, o.err, locator.ErrTimeout)
	assert.Contains(t, o.err.Error(), "open login page")
	assert.Zero(t, f.sess.URLReads, "hold never reached")
	assert.Equal(t, 1, f.sess.Closes)
}

func TestDashReloadFailureIsFatal(t *testing.T) {
	f := newFixture(t, 5)
	f.sess.Fail["reload"] = errors.New("net::ERR_INTERNET_DISCONNECTED")

	_, err := f.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_INTERNET_DISCONNECTED")
	assert.Equal(t, 1, f.sess.Closes)
}

func TestStepOneFullyBooked(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.OnClick["reserve button"] = []string{
		browsertest.TablePage(browsertest.Row{Label: "9時"}, browsertest.Row{Label: "10時", Glyph: "〇"}),
	}

	_, err := f.run(context.Background())
	require.ErrorIs(t, err, booking.ErrSlotUnavailable)

	var stepErr *booking.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, booking.StepHourBand, stepErr.Step)

	assert.NotContains(t, f.sess.Waits, "slot 9時00分", "step 2 never attempted")
	assert.NotContains(t, f.sess.Clicks, "slot 9時")
	assert.Equal(t, 1, f.sess.Closes)
}

func TestStepOneTimesOutWhenRowMissing(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.OnClick["reserve button"] = []string{browsertest.WaitingPage}

	_, err := f.run(context.Background())
	require.ErrorIs(t, err, locator.ErrTimeout)
	assert.NotErrorIs(t, err, booking.ErrSlotUnavailable)

	var stepErr *booking.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, booking.StepHourBand, stepErr.Step)
	assert.Equal(t, "slot 9時", stepErr.Query)
}

func TestStepThreeFailureTearsDownOnce(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.OnClick["slot 9時00分"] = []string{browsertest.WaitingPage}

	res, err := f.run(context.Background())
	var stepErr *booking.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, booking.StepConfirm, stepErr.Step)
	assert.ErrorIs(t, err, locator.ErrTimeout)

	assert.Equal(t, 1, f.sess.Closes)
	require.Len(t, res.Screenshots, 1)
	assert.Equal(t, booking.CaptionError, res.Screenshots[0].Caption)
	assert.False(t, res.Committed)
}

func TestPrimeFailureTearsDownOnce(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.Fail["navigate"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	res, err := f.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open login page")
	assert.Equal(t, 1, f.sess.Closes)
	assert.Zero(t, res.Reloads)
	assert.Zero(t, f.sess.URLReads)
}

func TestPrimeDriverErrorIsFatal(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.Fail["click:login button"] = errors.New("node is detached from document")

	res, err := f.run(context.Background())
	require.Error(t, err)
	assert.Equal(t, booking.OutcomeClicked, res.Prime.Subject.Outcome)
	assert.Equal(t, booking.OutcomeFailed, res.Prime.Login.Outcome)
	assert.Equal(t, 1, f.sess.Closes)
}

func TestPrimeAssumesExistingLogin(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.Pages[loginURL] = browsertest.LoginPage("55555")

	res, err := f.run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeNotFound, res.Prime.Subject.Outcome)
	assert.Equal(t, booking.OutcomeSkipped, res.Prime.Login.Outcome)
	assert.False(t, res.Prime.Authenticated())
	assert.True(t, f.rec.has(booking.KindWarning, "assuming an existing login"))
}

func TestStrictLoginAbortsBeforeDash(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.Pages[loginURL] = browsertest.LoginPage("55555")
	f.agent.Settings.StrictLogin = true

	res, err := f.run(context.Background())
	require.ErrorIs(t, err, booking.ErrNotAuthenticated)
	assert.Zero(t, res.Reloads)
	assert.Zero(t, f.sess.URLReads)
	assert.Equal(t, 1, f.sess.Closes)
}

func TestBodyTimeoutIsOnlyAWarning(t *testing.T) {
	f := newFixture(t, 1)
	f.sess.Fail["wait:body"] = locator.ErrTimeout

	_, err := f.run(context.Background())
	require.NoError(t, err)
	assert.True(t, f.rec.has(booking.KindWarning, "did not finish loading"))
}

func TestAbortDuringHold(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopAt := time.Date(2026, 10, 19, 5, 55, 0, 0, jst)
	f.clock.OnSleep = func(now time.Time) {
		if !now.Before(stopAt) {
			cancel()
		}
	}

	res, err := f.run(ctx)
	require.ErrorIs(t, err, booking.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), string(booking.PhaseHold))
	assert.Zero(t, res.Reloads)
	assert.Equal(t, 1, f.sess.Closes)
	require.Len(t, res.Screenshots, 1, "error screenshot taken despite cancellation")
	assert.Equal(t, booking.KindError, f.rec.last().Kind)
}

func TestAbortBeforeLaunch(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.clock.OnSleep = func(time.Time) { cancel() }

	_, err := f.run(ctx)
	require.ErrorIs(t, err, booking.ErrAborted)
	assert.Zero(t, f.launches)
	assert.Zero(t, f.sess.Closes)
}

func TestLaunchFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.agent.Launcher = booking.LaunchFunc(func(context.Context) (booking.Session, error) {
		return nil, errors.New("chrome not found")
	})

	_, err := f.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch browser")
	assert.Zero(t, f.sess.Closes)
}

func TestRunRejectsBadRequest(t *testing.T) {
	f := newFixture(t, 1)
	f.req.Slot = clinic.Slot{Hour: 13, Minute: 0}

	_, err := f.run(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.launches)

	f.req.Slot = clinic.Slot{Hour: 9}
	f.req.Subject.Code = ""
	_, err = f.run(context.Background())
	require.Error(t, err)
}

func TestRunRequiresOpening(t *testing.T) {
	f := newFixture(t, 1)
	f.agent.Settings.Opening = schedule.Opening{}

	_, err := f.run(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.launches)
}
