package clinic

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot is a requested appointment start time in clinic-local wall clock.
type Slot struct {
	Hour   int
	Minute int
}

const (
	firstHour = 9
	lastHour  = 17
)

var quarterHours = []int{0, 15, 30, 45}

// Slots returns every start time the clinic offers, in order.
// 12:00 is the last morning slot, the afternoon resumes at 15:00 and
// nothing starts after 17:30.
func Slots() []Slot {
	var out []Slot
	for h := firstHour; h <= lastHour; h++ {
		for _, m := range quarterHours {
			s := Slot{Hour: h, Minute: m}
			if s.offered() {
				out = append(out, s)
			}
		}
	}
	return out
}

func (s Slot) offered() bool {
	if s.Hour < firstHour || s.Hour > lastHour {
		return false
	}
	if s.Minute%15 != 0 || s.Minute < 0 || s.Minute > 45 {
		return false
	}
	if s.Hour == 12 && s.Minute > 0 {
		return false
	}
	if s.Hour > 12 && s.Hour < 15 {
		return false
	}
	if s.Hour == lastHour && s.Minute > 30 {
		return false
	}
	return true
}

// Validate reports whether the slot is one the clinic offers.
func (s Slot) Validate() error {
	if !s.offered() {
		return fmt.Errorf("time %s is not an offered slot", s)
	}
	return nil
}

// ParseSlot parses "HH:MM" (or "H:MM") and rejects times the clinic does not offer.
func ParseSlot(v string) (Slot, error) {
	v = strings.TrimSpace(v)
	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return Slot{}, fmt.Errorf("invalid time %q (want HH:MM)", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return Slot{}, fmt.Errorf("invalid hour in %q", v)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 {
		return Slot{}, fmt.Errorf("invalid minute in %q", v)
	}
	s := Slot{Hour: h, Minute: m}
	if err := s.Validate(); err != nil {
		return Slot{}, err
	}
	return s, nil
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// HourBandLabel is the row label on the site's first time screen, e.g. "9時".
func (s Slot) HourBandLabel() string {
	return fmt.Sprintf("%d時", s.Hour)
}

// ExactLabel is the row label on the site's second time screen, e.g. "9時00分".
func (s Slot) ExactLabel() string {
	return fmt.Sprintf("%d時%02d分", s.Hour, s.Minute)
}
