package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/history"
	"github.com/example/yoyaku-dash/internal/metrics"
)

// maxEvents bounds the in-memory event log of a run.
const maxEvents = 200

// ShotInfo describes a screenshot without its bytes.
type ShotInfo struct {
	Index   int       `json:"index"`
	At      time.Time `json:"at"`
	Caption string    `json:"caption"`
}

// Snapshot is a point-in-time copy of a run's state.
type Snapshot struct {
	ID          string          `json:"id"`
	SubjectKey  string          `json:"subject_key"`
	SubjectName string          `json:"subject_name"`
	SubjectCode string          `json:"subject_code"`
	Slot        string          `json:"slot"`
	Commit      bool            `json:"commit"`
	Status      Status          `json:"status"`
	Phase       booking.Phase   `json:"phase"`
	Countdown   string          `json:"countdown,omitempty"`
	Remaining   time.Duration   `json:"-"`
	RemainingS  int             `json:"remaining_seconds"`
	TargetOpen  time.Time       `json:"target_open"`
	Reloads     int             `json:"reloads"`
	Committed   bool            `json:"committed"`
	Error       string          `json:"error,omitempty"`
	Events      []booking.Event `json:"events"`
	Shots       []ShotInfo      `json:"screenshots"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

func (s Snapshot) Done() bool { return s.Status != StatusRunning }

// tracked is the live state of one run. It is the run's booking.Reporter.
type tracked struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	rec    Recorder
	log    *zap.Logger

	mu          sync.Mutex
	snap        Snapshot
	shots       []booking.Screenshot
	reachedDash bool
}

func newTracked(id string, req booking.Request, commit bool, now time.Time, cancel context.CancelFunc) *tracked {
	return &tracked{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    zap.NewNop(),
		snap: Snapshot{
			ID:          id,
			SubjectKey:  req.Subject.Key,
			SubjectName: req.Subject.Name,
			SubjectCode: req.Subject.Code,
			Slot:        req.Slot.String(),
			Commit:      commit,
			Status:      StatusRunning,
			StartedAt:   now,
		},
	}
}

func (t *tracked) Report(e booking.Event) {
	t.mu.Lock()
	if e.Phase != "" {
		t.snap.Phase = e.Phase
	}
	if e.Phase == booking.PhaseDash {
		t.reachedDash = true
	}
	if e.Kind == booking.KindCountdown {
		t.snap.Countdown = e.Message
		t.snap.Remaining = e.Remaining
		t.mu.Unlock()
		return
	}
	t.snap.Countdown, t.snap.Remaining = "", 0
	t.snap.Events = append(t.snap.Events, e)
	if n := len(t.snap.Events); n > maxEvents {
		t.snap.Events = t.snap.Events[n-maxEvents:]
	}
	t.mu.Unlock()

	if t.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := t.rec.AppendEvent(ctx, t.id, e); err != nil {
			t.log.Warn("history: record event failed", zap.Error(err))
		}
	}
}

func (t *tracked) Capture(s booking.Screenshot) {
	t.mu.Lock()
	t.shots = append(t.shots, s)
	t.snap.Shots = append(t.snap.Shots, ShotInfo{Index: len(t.shots) - 1, At: s.At, Caption: s.Caption})
	t.mu.Unlock()

	metrics.ScreenshotCaptured(s.Caption)
	if t.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.rec.AppendScreenshot(ctx, t.id, s); err != nil {
			t.log.Warn("history: record screenshot failed", zap.Error(err))
		}
	}
}

func (t *tracked) complete(status Status, res booking.Result, err error, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = status
	t.snap.TargetOpen = res.Schedule.TargetOpen
	t.snap.Reloads = res.Reloads
	t.snap.Committed = res.Committed
	t.snap.FinishedAt = now
	t.snap.Countdown, t.snap.Remaining = "", 0
	if err != nil {
		t.snap.Error = err.Error()
	}
}

func (t *tracked) dashed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reachedDash
}

func (t *tracked) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	s.RemainingS = int(s.Remaining / time.Second)
	s.Events = append([]booking.Event(nil), s.Events...)
	s.Shots = append([]ShotInfo(nil), s.Shots...)
	return s
}

func (t *tracked) screenshot(i int) (booking.Screenshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.shots) {
		return booking.Screenshot{}, false
	}
	return t.shots[i], true
}

func (t *tracked) historyRow() history.Run {
	s := t.snapshot()
	run := history.Run{
		ID:          s.ID,
		SubjectKey:  s.SubjectKey,
		SubjectCode: s.SubjectCode,
		SubjectName: s.SubjectName,
		Slot:        s.Slot,
		Commit:      s.Commit,
		Status:      string(s.Status),
		Phase:       string(s.Phase),
		Reloads:     s.Reloads,
		Committed:   s.Committed,
		StartedAt:   s.StartedAt,
	}
	if !s.TargetOpen.IsZero() {
		open := s.TargetOpen
		run.TargetOpen = &open
	}
	if s.Error != "" {
		msg := s.Error
		run.LastError = &msg
	}
	if s.Done() {
		fin := s.FinishedAt
		run.FinishedAt = &fin
	}
	return run
}
