package booking

import (
	"time"

	"github.com/example/yoyaku-dash/internal/schedule"
)

const DefaultLoginURL = "https://shimura-kids.com/yoyaku/php/line_login.php"

// Settings tunes one run. Zero durations take the defaults below.
type Settings struct {
	LoginURL string
	Opening  schedule.Opening

	LoginLead time.Duration // login this long before opening
	DashLead  time.Duration // start polling this long before opening

	CoarseTick time.Duration
	FineTick   time.Duration
	FineBelow  time.Duration // switch to FineTick when less than this remains

	NavigateTimeout time.Duration
	BodyTimeout     time.Duration
	StepTimeout     time.Duration
	DashCeiling     time.Duration // give up this long after opening
	ReloadPause     time.Duration
	SettleDelay     time.Duration // pause before the confirmation screenshot

	// CommitEnabled allows the final reserve click, the only step with a
	// real-world effect. Off unless explicitly set.
	CommitEnabled bool
	// StrictLogin aborts the run when the subject chooser or login button
	// cannot be found, instead of assuming an existing login.
	StrictLogin bool
}

// DefaultSettings returns the production tuning with committing disabled.
func DefaultSettings(opening schedule.Opening) Settings {
	return Settings{Opening: opening}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.LoginURL == "" {
		s.LoginURL = DefaultLoginURL
	}
	setDefault(&s.LoginLead, 10*time.Minute)
	setDefault(&s.DashLead, 10*time.Second)
	setDefault(&s.CoarseTick, 10*time.Second)
	setDefault(&s.FineTick, time.Second)
	setDefault(&s.FineBelow, time.Minute)
	setDefault(&s.NavigateTimeout, 30*time.Second)
	setDefault(&s.BodyTimeout, 20*time.Second)
	setDefault(&s.StepTimeout, 20*time.Second)
	setDefault(&s.DashCeiling, time.Minute)
	setDefault(&s.ReloadPause, 500*time.Millisecond)
	setDefault(&s.SettleDelay, 2*time.Second)
	return s
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}
