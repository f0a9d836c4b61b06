package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/locator"
)

// Outcome of one best-effort click while logging in.
type Outcome int

const (
	OutcomeClicked Outcome = iota + 1
	// OutcomeNotFound: the control is absent, most likely because the
	// session is already past the login screen.
	OutcomeNotFound
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClicked:
		return "clicked"
	case OutcomeNotFound:
		return "not found"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

type Attempt struct {
	Query   string
	Outcome Outcome
	Err     error
}

// PrimeResult records what the login screen looked like.
type PrimeResult struct {
	Subject Attempt
	Login   Attempt
}

// Authenticated reports whether both login clicks went through.
func (p PrimeResult) Authenticated() bool {
	return p.Subject.Outcome == OutcomeClicked && p.Login.Outcome == OutcomeClicked
}

// Err returns the first driver error, if any.
func (p PrimeResult) Err() error {
	for _, a := range []Attempt{p.Subject, p.Login} {
		if a.Outcome == OutcomeFailed {
			return fmt.Errorf("%s: %w", a.Query, a.Err)
		}
	}
	return nil
}

func tryClick(ctx context.Context, sess Session, q locator.Query) Attempt {
	err := sess.Click(ctx, q)
	switch {
	case err == nil:
		return Attempt{Query: q.Name, Outcome: OutcomeClicked}
	case errors.Is(err, locator.ErrNotFound):
		return Attempt{Query: q.Name, Outcome: OutcomeNotFound}
	default:
		return Attempt{Query: q.Name, Outcome: OutcomeFailed, Err: err}
	}
}

// prime opens the login page and selects the subject so the session is
// authenticated before the time-critical phase.
func (r *run) prime(ctx context.Context) error {
	r.emit(KindInfo, "logging in as %s ahead of opening", r.req.Subject)
	if err := r.navigate(ctx, r.cfg.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := r.sess.WaitReady(ctx, locator.Body(), r.cfg.BodyTimeout); err != nil {
		if !errors.Is(err, locator.ErrTimeout) {
			return fmt.Errorf("open login page: %w", err)
		}
		r.emit(KindWarning, "login page did not finish loading within %s; continuing", r.cfg.BodyTimeout)
	}

	var p PrimeResult
	p.Subject = tryClick(ctx, r.sess, locator.SubjectChooser(r.req.Subject.Code))
	if p.Subject.Outcome == OutcomeClicked {
		p.Login = tryClick(ctx, r.sess, locator.LoginButton())
	} else {
		p.Login = Attempt{Query: locator.LoginButton().Name, Outcome: OutcomeSkipped}
	}
	r.res.Prime = p

	if err := p.Err(); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if p.Authenticated() {
		r.emit(KindInfo, "logged in as %s", r.req.Subject)
		return nil
	}

	switch {
	case p.Subject.Outcome == OutcomeNotFound:
		r.emit(KindWarning, "subject %s not offered on the login page; assuming an existing login", r.req.Subject.Code)
	case p.Login.Outcome == OutcomeNotFound:
		r.emit(KindWarning, "subject selected but no login button found; assuming an existing login")
	}
	if r.cfg.StrictLogin {
		return ErrNotAuthenticated
	}
	return nil
}

// navigate loads url, giving up after NavigateTimeout.
func (r *run) navigate(ctx context.Context, url string) error {
	navCtx, cancel := clock.WithTimeout(ctx, r.clock, r.cfg.NavigateTimeout)
	defer cancel()
	err := r.sess.Navigate(navCtx, url)
	if err != nil && navCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("no response after %s: %w", r.cfg.NavigateTimeout, locator.ErrTimeout)
	}
	return err
}
