// Package browser drives a headless Chrome through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/example/yoyaku-dash/internal/locator"
)

// MobileUserAgent is what the clinic site sees; it serves its phone layout.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"

type Options struct {
	Headless  bool
	UserAgent string
	ExecPath  string // empty: let chromedp find Chrome
	Width     int
	Height    int
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.UserAgent) == "" {
		o.UserAgent = MobileUserAgent
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 390, 844
	}
	return o
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(o.UserAgent),
		chromedp.WindowSize(o.Width, o.Height),
	)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Session is one browser with one tab. It is not safe for concurrent use.
type Session struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Launch starts Chrome with one tab. The browser outlives ctx; it is
// released only by Close.
func Launch(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts.allocatorOptions()...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)
	s := &Session{ctx: tabCtx, cancel: cancel, allocCancel: allocCancel, logger: logger}

	// The first Run allocates the browser and binds it to the tab context, so
	// it must not be given a derived context.
	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := chromedp.Run(tabCtx); err != nil {
		_ = s.Close()
		return nil, wrap("launch", err)
	}
	logger.Debug("browser launched", zap.Bool("headless", opts.Headless), zap.String("user_agent", opts.UserAgent))
	return s, nil
}

// run executes actions on the tab, bounded by ctx's cancellation and deadline.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		opCtx, cancelDL = context.WithDeadline(opCtx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return wrap("navigate", s.run(ctx, chromedp.Navigate(url)))
}

// WaitReady waits up to timeout for q to exist in the DOM.
func (s *Session) WaitReady(ctx context.Context, q locator.Query, timeout time.Duration) error {
	return s.waitFor(ctx, q, timeout, chromedp.WaitReady(q.XPath, chromedp.BySearch))
}

// WaitClickable waits up to timeout for q to be visible and enabled.
func (s *Session) WaitClickable(ctx context.Context, q locator.Query, timeout time.Duration) error {
	return s.waitFor(ctx, q, timeout,
		chromedp.WaitVisible(q.XPath, chromedp.BySearch),
		chromedp.WaitEnabled(q.XPath, chromedp.BySearch),
	)
}

func (s *Session) waitFor(ctx context.Context, q locator.Query, timeout time.Duration, actions ...chromedp.Action) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(waitCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s after %s: %w", q.Name, timeout, locator.ErrTimeout)
	}
	return wrap("wait "+q.Name, err)
}

func (s *Session) nodes(ctx context.Context, q locator.Query) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(q.XPath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, wrap("find "+q.Name, err)
	}
	return nodes, nil
}

// Find reports whether q currently matches anything, without waiting.
func (s *Session) Find(ctx context.Context, q locator.Query) (bool, error) {
	nodes, err := s.nodes(ctx, q)
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Click clicks the first match of q, or returns locator.ErrNotFound.
func (s *Session) Click(ctx context.Context, q locator.Query) error {
	nodes, err := s.nodes(ctx, q)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%s: %w", q.Name, locator.ErrNotFound)
	}
	n := nodes[0]
	return wrap("click "+q.Name, s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx); err != nil {
			return err
		}
		return chromedp.MouseClickNode(n).Do(ctx)
	})))
}

func (s *Session) ScrollIntoView(ctx context.Context, q locator.Query) error {
	return wrap("scroll "+q.Name, s.run(ctx, chromedp.ScrollIntoView(q.XPath, chromedp.BySearch)))
}

// Reload forces a full page reload.
func (s *Session) Reload(ctx context.Context) error {
	return wrap("reload", s.run(ctx, chromedp.Reload()))
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", wrap("location", err)
	}
	return u, nil
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, wrap("screenshot", err)
	}
	return buf, nil
}

// Close shuts the browser down. Later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		s.cancel()
		s.allocCancel()
		if errors.Is(s.closeErr, context.Canceled) {
			s.closeErr = nil
		}
		s.logger.Debug("browser closed")
	})
	return s.closeErr
}

// errorHints maps driver error text to something an operator can act on.
var errorHints = map[string]string{
	"executable file not found": "Chrome is not installed or CHROME_PATH is wrong",
	"net::err_":                 "the clinic site could not be reached",
	"websocket":                 "the browser connection dropped",
}

func wrap(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, locator.ErrNotFound) || errors.Is(err, locator.ErrTimeout) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	lower := strings.ToLower(err.Error())
	for pattern, hint := range errorHints {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("browser %s: %w (%s)", action, err, hint)
		}
	}
	return fmt.Errorf("browser %s: %w", action, err)
}
