package clinic

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Subject is the person a slot is booked for.
type Subject struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

func (s Subject) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Code)
}

// Roster is the fixed set of subjects an operator may choose from.
type Roster struct {
	Subjects []Subject `yaml:"subjects"`
}

//go:embed roster.yaml
var defaultRoster []byte

var ErrUnknownSubject = errors.New("unknown subject")

// DefaultRoster returns the built-in roster.
func DefaultRoster() Roster {
	r, err := ParseRoster(defaultRoster)
	if err != nil {
		panic(fmt.Sprintf("clinic: embedded roster: %v", err))
	}
	return r
}

// LoadRoster reads a roster file; an empty path yields the built-in roster.
func LoadRoster(path string) (Roster, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRoster(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(b)
}

func ParseRoster(b []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

func (r Roster) Validate() error {
	if len(r.Subjects) == 0 {
		return errors.New("roster has no subjects")
	}
	seen := map[string]bool{}
	for _, s := range r.Subjects {
		if s.Key == "" || s.Code == "" {
			return fmt.Errorf("roster entry %q: key and code required", s.Name)
		}
		if seen[s.Key] || seen[s.Code] {
			return fmt.Errorf("roster entry %q is duplicated", s.Key)
		}
		seen[s.Key] = true
		seen[s.Code] = true
	}
	return nil
}

// Lookup finds a subject by key or by code.
func (r Roster) Lookup(v string) (Subject, error) {
	v = strings.TrimSpace(v)
	for _, s := range r.Subjects {
		if s.Key == v || s.Code == v {
			return s, nil
		}
	}
	return Subject{}, fmt.Errorf("%w: %q", ErrUnknownSubject, v)
}
