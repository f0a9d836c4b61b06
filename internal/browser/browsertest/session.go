// Package browsertest provides a scriptable in-memory browser session that
// serves fixture HTML and evaluates the same locator queries as Chrome.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/yoyaku-dash/internal/locator"
)

const blank = "<html><head></head><body></body></html>"

// Session is a fake browser session. Configure the exported fields before
// use; the recorded fields can be read after.
type Session struct {
	// Pages maps a URL to the HTML served when it is navigated to.
	Pages map[string]string
	// OnClick maps a query name to the pages shown after successive clicks on
	// it; once exhausted the last page stays.
	OnClick map[string][]string
	// OnReload returns the HTML for the nth reload (1-based); false keeps the
	// current page.
	OnReload func(n int) (string, bool)
	// Fail injects errors by operation: "navigate", "reload", "url",
	// "screenshot", "close", or "click:<query>", "wait:<query>", "find:<query>".
	Fail map[string]error
	// Hang makes "navigate" or "reload" block until the caller's context is
	// done, like a site that never finishes loading.
	Hang map[string]bool

	mu          sync.Mutex
	hanging     int
	url         string
	doc         *locator.Document
	Navigations []string
	Clicks      []string
	Waits       []string
	Scrolls     []string
	Reloads     int
	URLReads    int
	Shots       int
	Closes      int
}

// New returns a session showing a blank page.
func New() *Session {
	return &Session{
		Pages:   map[string]string{},
		OnClick: map[string][]string{},
		Fail:    map[string]error{},
		Hang:    map[string]bool{},
	}
}

func (s *Session) show(html string) {
	s.doc = locator.MustParse(html)
}

func (s *Session) document() *locator.Document {
	if s.doc == nil {
		s.show(blank)
	}
	return s.doc
}

func (s *Session) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail[op]
}

// hang blocks until ctx is done when op is set to hang.
func (s *Session) hang(ctx context.Context, op string) bool {
	s.mu.Lock()
	hang := s.Hang[op]
	if hang {
		s.hanging++
	}
	s.mu.Unlock()
	if !hang {
		return false
	}
	<-ctx.Done()
	s.mu.Lock()
	s.hanging--
	s.mu.Unlock()
	return true
}

// Hanging reports how many calls are currently blocked by Hang.
func (s *Session) Hanging() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hanging
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.hang(ctx, "navigate") {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Navigations = append(s.Navigations, url)
	if err := s.fail("navigate"); err != nil {
		return err
	}
	s.url = url
	html, ok := s.Pages[url]
	if !ok {
		html = blank
	}
	s.show(html)
	return ctx.Err()
}

// WaitReady and WaitClickable do not wait: a query that does not match the
// current page times out immediately.
func (s *Session) WaitReady(ctx context.Context, q locator.Query, timeout time.Duration) error {
	return s.wait(ctx, q, timeout)
}

func (s *Session) WaitClickable(ctx context.Context, q locator.Query, timeout time.Duration) error {
	return s.wait(ctx, q, timeout)
}

func (s *Session) wait(ctx context.Context, q locator.Query, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Waits = append(s.Waits, q.Name)
	if err := s.fail("wait:" + q.Name); err != nil {
		return err
	}
	if !s.document().Has(q) {
		return fmt.Errorf("%s after %s: %w", q.Name, timeout, locator.ErrTimeout)
	}
	return ctx.Err()
}

func (s *Session) Find(ctx context.Context, q locator.Query) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("find:" + q.Name); err != nil {
		return false, err
	}
	return s.document().Has(q), ctx.Err()
}

func (s *Session) Click(ctx context.Context, q locator.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("click:" + q.Name); err != nil {
		return err
	}
	if _, err := s.document().First(q); err != nil {
		return err
	}
	n := 0
	for _, c := range s.Clicks {
		if c == q.Name {
			n++
		}
	}
	s.Clicks = append(s.Clicks, q.Name)
	if pages := s.OnClick[q.Name]; len(pages) > 0 {
		s.show(pages[min(n, len(pages)-1)])
	}
	return ctx.Err()
}

func (s *Session) ScrollIntoView(ctx context.Context, q locator.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.document().First(q); err != nil {
		return err
	}
	s.Scrolls = append(s.Scrolls, q.Name)
	return ctx.Err()
}

func (s *Session) Reload(ctx context.Context) error {
	if s.hang(ctx, "reload") {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("reload"); err != nil {
		return err
	}
	s.Reloads++
	if s.OnReload != nil {
		if html, ok := s.OnReload(s.Reloads); ok {
			s.show(html)
		}
	}
	return ctx.Err()
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.URLReads++
	if err := s.fail("url"); err != nil {
		return "", err
	}
	return s.url, ctx.Err()
}

// pngMagic is enough of a PNG for callers that sniff content type.
var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("screenshot"); err != nil {
		return nil, err
	}
	s.Shots++
	return append(append([]byte(nil), pngMagic...), byte(s.Shots)), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return s.fail("close")
}

// Has reports whether q matches the page currently shown.
func (s *Session) Has(q locator.Query) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.document().Has(q)
}
