package booking

import (
	"errors"
	"fmt"
)

var (
	ErrAborted             = errors.New("run aborted")
	ErrNotAuthenticated    = errors.New("login controls not found and strict login is on")
	ErrButtonNeverAppeared = errors.New("reservation button never appeared")
	ErrSlotUnavailable     = errors.New("no availability for the requested time")
)

// Step numbers the screens of the booking form.
type Step int

const (
	StepHourBand Step = iota + 1
	StepExactTime
	StepConfirm
	StepCommit
)

func (s Step) String() string {
	switch s {
	case StepHourBand:
		return "hour band"
	case StepExactTime:
		return "exact time"
	case StepConfirm:
		return "confirm"
	case StepCommit:
		return "commit"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// StepError is a fatal failure on one screen of the booking form.
type StepError struct {
	Step  Step
	Query string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) on %s: %v", int(e.Step), e.Step, e.Query, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
