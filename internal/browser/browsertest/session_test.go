package browsertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/yoyaku-dash/internal/locator"
)

func TestSessionScriptedFlow(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Pages["https://clinic.test/login"] = LoginPage("111", "222")
	s.OnClick["login button"] = []string{WaitingPage}
	s.OnReload = func(n int) (string, bool) {
		if n == 3 {
			return OpenPage(true), true
		}
		return "", false
	}

	require.NoError(t, s.Navigate(ctx, "https://clinic.test/login"))
	require.NoError(t, s.WaitReady(ctx, locator.Body(), time.Second))
	require.NoError(t, s.Click(ctx, locator.SubjectChooser("222")))
	require.NoError(t, s.Click(ctx, locator.LoginButton()))

	found, err := s.Find(ctx, locator.ReserveButton())
	require.NoError(t, err)
	assert.False(t, found)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Reload(ctx))
	}
	assert.True(t, s.Has(locator.ReserveButton()))

	u, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://clinic.test/login", u)

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, png[:len(pngMagic)])

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"subject 222", "login button"}, s.Clicks)
	assert.Equal(t, 3, s.Reloads)
	assert.Equal(t, 1, s.Closes)
}

func TestSessionMissingAndInjected(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Pages["u"] = TablePage(Row{"9時", ""})

	require.NoError(t, s.Navigate(ctx, "u"))
	err := s.WaitClickable(ctx, locator.SlotLink("9時"), time.Second)
	assert.ErrorIs(t, err, locator.ErrTimeout)
	assert.ErrorIs(t, s.Click(ctx, locator.SlotLink("9時")), locator.ErrNotFound)

	boom := errors.New("driver crashed")
	s.Fail["reload"] = boom
	assert.ErrorIs(t, s.Reload(ctx), boom)
	assert.Equal(t, 0, s.Reloads)
}

func TestSessionHangUntilCancelled(t *testing.T) {
	s := New()
	s.Hang["reload"] = true
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Reload(ctx) }()

	require.Eventually(t, func() bool { return s.Hanging() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, s.Hanging())
	assert.Zero(t, s.Reloads)
}
