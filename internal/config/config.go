// Package config reads the process configuration from the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // the clinic's zone must resolve on hosts without zoneinfo

	"github.com/example/yoyaku-dash/internal/booking"
	"github.com/example/yoyaku-dash/internal/browser"
	"github.com/example/yoyaku-dash/internal/domain/clinic"
	"github.com/example/yoyaku-dash/internal/schedule"
)

type Config struct {
	// clinic site
	LoginURL string
	Location *time.Location
	OpenAt   string // HH:MM in Location

	// browser
	Headless   bool
	UserAgent  string
	ChromePath string

	// booking
	CommitEnabled bool
	StrictLogin   bool
	StepTimeout   time.Duration
	DashCeiling   time.Duration

	RosterFile    string
	ScreenshotDir string

	// panel
	ListenAddr        string
	BaseURL           string
	DatabaseURL       string // empty disables history
	CookieHashKey     []byte
	CookieBlockKey    []byte
	PanelPasswordHash string

	LogLevel  string
	LogFormat string
}

func FromEnv() (Config, error) {
	cfg := Config{
		LoginURL:          getenv("SITE_LOGIN_URL", booking.DefaultLoginURL),
		OpenAt:            getenv("SITE_OPEN_AT", "06:00"),
		UserAgent:         getenv("BROWSER_USER_AGENT", browser.MobileUserAgent),
		ChromePath:        os.Getenv("CHROME_PATH"),
		RosterFile:        os.Getenv("ROSTER_FILE"),
		ScreenshotDir:     getenv("SCREENSHOT_DIR", "screenshots"),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		BaseURL:           getenv("BASE_URL", "http://localhost:8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		PanelPasswordHash: os.Getenv("PANEL_PASSWORD_BCRYPT"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "console"),
	}

	tz := getenv("SITE_TIMEZONE", "Asia/Tokyo")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SITE_TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc
	if _, err := schedule.ParseOpening(cfg.OpenAt, loc); err != nil {
		return Config{}, fmt.Errorf("invalid SITE_OPEN_AT: %w", err)
	}

	if cfg.Headless, err = envBool("BROWSER_HEADLESS", true); err != nil {
		return Config{}, err
	}
	if cfg.CommitEnabled, err = envBool("BOOKING_COMMIT_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.StrictLogin, err = envBool("BOOKING_STRICT_LOGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.StepTimeout, err = envSeconds("STEP_TIMEOUT_SECONDS", 20); err != nil {
		return Config{}, err
	}
	if cfg.DashCeiling, err = envSeconds("DASH_CEILING_SECONDS", 60); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("COOKIE_HASH_KEY"); v != "" {
		if cfg.CookieHashKey, err = decodeB64(v); err != nil {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
	}
	if v := os.Getenv("COOKIE_BLOCK_KEY"); v != "" {
		if cfg.CookieBlockKey, err = decodeB64(v); err != nil {
			return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}

	return cfg, nil
}

// CheckPanel reports what is missing to serve the operator panel.
func (c Config) CheckPanel() error {
	if len(c.CookieHashKey) == 0 || len(c.CookieBlockKey) == 0 {
		return fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required (32 and 16/24/32 bytes base64; see `yoyakudash keys`)")
	}
	switch len(c.CookieBlockKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("COOKIE_BLOCK_KEY must decode to 16, 24 or 32 bytes, got %d", len(c.CookieBlockKey))
	}
	if c.PanelPasswordHash == "" {
		return fmt.Errorf("PANEL_PASSWORD_BCRYPT is required (see `yoyakudash passwd`)")
	}
	return nil
}

func (c Config) Opening() (schedule.Opening, error) {
	return schedule.ParseOpening(c.OpenAt, c.Location)
}

// BookingSettings returns the run tuning; durations not configured here keep
// the package defaults.
func (c Config) BookingSettings() (booking.Settings, error) {
	opening, err := c.Opening()
	if err != nil {
		return booking.Settings{}, err
	}
	s := booking.DefaultSettings(opening)
	s.LoginURL = c.LoginURL
	s.StepTimeout = c.StepTimeout
	s.DashCeiling = c.DashCeiling
	s.CommitEnabled = c.CommitEnabled
	s.StrictLogin = c.StrictLogin
	return s, nil
}

func (c Config) BrowserOptions() browser.Options {
	return browser.Options{Headless: c.Headless, UserAgent: c.UserAgent, ExecPath: c.ChromePath}
}

// Roster returns ROSTER_FILE's roster, or the built-in one.
func (c Config) Roster() (clinic.Roster, error) {
	if c.RosterFile == "" {
		return clinic.DefaultRoster(), nil
	}
	return clinic.LoadRoster(c.RosterFile)
}

// decodeB64 accepts the key itself or a path to a file holding it, as
// mounted secrets usually are.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", k, v)
	}
	return b, nil
}

func envSeconds(k string, def int) (time.Duration, error) {
	n, err := strconv.Atoi(getenv(k, strconv.Itoa(def)))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s", k)
	}
	return time.Duration(n) * time.Second, nil
}
