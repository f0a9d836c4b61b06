// Package runner owns the booking run started from the panel or CLI. At
// most one run is active at a time; recent runs stay queryable in memory
// and, when a Recorder is configured, in the history database.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/clock"
	"github.com/example/yoyaku-dash/internal/history"
	"github.com/example/yoyaku-dash/internal/metrics"
)

var (
	ErrBusy     = errors.New("a run is already in progress")
	ErrNotFound = errors.New("run not found")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Recorder persists runs. *history.Repo implements it.
type Recorder interface {
	Start(ctx context.Context, run history.Run) error
	Finish(ctx context.Context, run history.Run) error
	AppendEvent(ctx context.Context, runID string, e booking.Event) error
	AppendScreenshot(ctx context.Context, runID string, s booking.Screenshot) error
}

type Options struct {
	Launcher booking.Launcher
	Settings booking.Settings
	Clock    clock.Clock
	Logger   *zap.Logger
	History  Recorder // optional
	Keep     int      // finished runs kept in memory, default 10
}

type Runner struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	active *tracked
	runs   []*tracked // oldest first

	wg sync.WaitGroup
}

func New(opts Options) *Runner {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Keep <= 0 {
		opts.Keep = 10
	}
	return &Runner{opts: opts, log: opts.Logger.Named("runner")}
}

// CommitAllowed reports whether runs may ever perform the final click.
func (r *Runner) CommitAllowed() bool { return r.opts.Settings.CommitEnabled }

// Start arms a run in the background and returns immediately. commit asks
// for the final reserve click; it only takes effect when the configured
// settings allow committing.
func (r *Runner) Start(req booking.Request, commit bool) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	if r.active != nil {
		id := r.active.id
		r.mu.Unlock()
		return Snapshot{}, &BusyError{ActiveID: id}
	}

	settings := r.opts.Settings
	settings.CommitEnabled = settings.CommitEnabled && commit

	ctx, cancel := context.WithCancel(context.Background())
	t := newTracked(uuid.NewString(), req, settings.CommitEnabled, r.opts.Clock.Now(), cancel)
	t.rec = r.opts.History
	t.log = r.log.With(zap.String("run_id", t.id))
	r.active = t
	r.runs = append(r.runs, t)
	r.prune()
	r.mu.Unlock()

	if t.rec != nil {
		if err := t.rec.Start(ctx, t.historyRow()); err != nil {
			t.log.Warn("history: record start failed", zap.Error(err))
			t.rec = nil
		}
	}

	agent := &booking.Agent{
		Launcher: r.opts.Launcher,
		Settings: settings,
		Clock:    r.opts.Clock,
		Logger:   t.log,
		Reporter: t,
	}

	metrics.RunStarted()
	t.log.Info("run started", zap.String("subject", req.Subject.Code), zap.Stringer("slot", req.Slot), zap.Bool("commit", settings.CommitEnabled))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		res, err := agent.Run(ctx, req)
		r.finish(t, res, err)
	}()

	return t.snapshot(), nil
}

func (r *Runner) finish(t *tracked, res booking.Result, err error) {
	now := r.opts.Clock.Now()
	status := StatusSucceeded
	switch {
	case errors.Is(err, booking.ErrAborted):
		status = StatusAborted
	case err != nil:
		status = StatusFailed
	}
	t.complete(status, res, err, now)

	r.mu.Lock()
	if r.active == t {
		r.active = nil
	}
	r.mu.Unlock()

	snap := t.snapshot()
	metrics.RunFinished(string(status), now.Sub(snap.StartedAt), res.Reloads, t.dashed())
	if t.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.rec.Finish(ctx, t.historyRow()); err != nil {
			t.log.Warn("history: record finish failed", zap.Error(err))
		}
	}
	t.log.Info("run finished", zap.String("status", string(status)), zap.Int("reloads", res.Reloads), zap.Bool("committed", res.Committed))
	close(t.done)
}

// prune drops the oldest finished runs beyond Keep. Callers hold r.mu.
func (r *Runner) prune() {
	for len(r.runs) > r.opts.Keep {
		if r.runs[0] == r.active {
			return
		}
		r.runs = r.runs[1:]
	}
}

func (r *Runner) find(id string) *tracked {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.runs {
		if t.id == id {
			return t
		}
	}
	return nil
}

// Cancel aborts the run with the given id. Cancelling a finished run is a
// no-op.
func (r *Runner) Cancel(id string) error {
	t := r.find(id)
	if t == nil {
		return ErrNotFound
	}
	t.cancel()
	return nil
}

// Active returns the run in progress, if any.
func (r *Runner) Active() (Snapshot, bool) {
	r.mu.Lock()
	t := r.active
	r.mu.Unlock()
	if t == nil {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

func (r *Runner) Get(id string) (Snapshot, bool) {
	t := r.find(id)
	if t == nil {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Latest returns the most recently started run.
func (r *Runner) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return Snapshot{}, false
	}
	return r.runs[len(r.runs)-1].snapshot(), true
}

// List returns the runs kept in memory, newest first.
func (r *Runner) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0; i-- {
		out = append(out, r.runs[i].snapshot())
	}
	return out
}

func (r *Runner) Screenshot(id string, index int) (booking.Screenshot, bool) {
	t := r.find(id)
	if t == nil {
		return booking.Screenshot{}, false
	}
	return t.screenshot(index)
}

// Done returns a channel closed when the run with the given id has ended.
func (r *Runner) Done(id string) (<-chan struct{}, error) {
	t := r.find(id)
	if t == nil {
		return nil, ErrNotFound
	}
	return t.done, nil
}

// Shutdown cancels the active run and waits for it to unwind.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	if r.active != nil {
		r.active.cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// BusyError is returned by Start while another run is active.
type BusyError struct{ ActiveID string }

func (e *BusyError) Error() string { return ErrBusy.Error() + " (" + e.ActiveID + ")" }

func (e *BusyError) Is(target error) bool { return target == ErrBusy }
