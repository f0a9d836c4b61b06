package booking

import (
	"context"
	"time"

	"github.com/example/yoyaku-dash/internal/locator"
)

// Session is the browser capability the agent drives. Lookups that match
// nothing return locator.ErrNotFound; waits that expire return
// locator.ErrTimeout.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, q locator.Query, timeout time.Duration) error
	WaitClickable(ctx context.Context, q locator.Query, timeout time.Duration) error
	Find(ctx context.Context, q locator.Query) (bool, error)
	Click(ctx context.Context, q locator.Query) error
	ScrollIntoView(ctx context.Context, q locator.Query) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// LaunchFunc adapts a function to Launcher.
type LaunchFunc func(ctx context.Context) (Session, error)

func (f LaunchFunc) Launch(ctx context.Context) (Session, error) { return f(ctx) }
