package booking

import "time"

type Phase string

const (
	PhaseWaitLogin Phase = "wait_login"
	PhasePrime     Phase = "prime"
	PhaseHold      Phase = "hold"
	PhaseDash      Phase = "dash"
	PhaseForm      Phase = "form"
	PhaseDone      Phase = "done"
)

type Kind string

const (
	KindInfo      Kind = "info"
	KindWarning   Kind = "warning"
	KindCountdown Kind = "countdown"
	KindSuccess   Kind = "success"
	KindError     Kind = "error"
)

// Event is a status update for whoever started the run.
type Event struct {
	At        time.Time     `json:"at"`
	Phase     Phase         `json:"phase"`
	Kind      Kind          `json:"kind"`
	Message   string        `json:"message"`
	Remaining time.Duration `json:"-"` // countdown events only
}

type Screenshot struct {
	At      time.Time
	Caption string
	PNG     []byte
}

// Screenshot captions.
const (
	CaptionResult = "result"
	CaptionError  = "error"
)

// Reporter receives a run's progress. Calls come from the run's goroutine.
type Reporter interface {
	Report(Event)
	Capture(Screenshot)
}

type nopReporter struct{}

func (nopReporter) Report(Event)       {}
func (nopReporter) Capture(Screenshot) {}
