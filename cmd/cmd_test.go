package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/yoyaku-dash/internal/auth"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "yoyakudash dev (commit=none, built=unknown)\n", out)
}

func TestKeys(t *testing.T) {
	out, err := execute(t, "", "keys")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "COOKIE_HASH_KEY="))
	assert.True(t, strings.HasPrefix(lines[1], "COOKIE_BLOCK_KEY="))
}

func TestPasswdFromStdin(t *testing.T) {
	out, err := execute(t, "hunter22-long\n", "passwd")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "PANEL_PASSWORD_BCRYPT='"))
	hash := strings.TrimSuffix(strings.TrimPrefix(out, "PANEL_PASSWORD_BCRYPT='"), "'\n")
	assert.True(t, auth.CheckPassword(hash, "hunter22-long"))

	_, err = execute(t, "", "passwd", "--password", "short")
	assert.Error(t, err)
}

func TestSlots(t *testing.T) {
	t.Setenv("ROSTER_FILE", "")
	t.Setenv("SITE_TIMEZONE", "")
	t.Setenv("SITE_OPEN_AT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	out, err := execute(t, "", "slots")
	require.NoError(t, err)
	assert.Contains(t, out, "child-a")
	assert.Contains(t, out, "12979")
	assert.Contains(t, out, "09:00 09:15 09:30 09:45 10:00")
	assert.Contains(t, out, "12:00 15:00")
	assert.Contains(t, out, "17:30\n")
	assert.Contains(t, out, "next opening:")
}

func TestRunRequiresFlags(t *testing.T) {
	_, err := execute(t, "", "run", "--time", "09:00")
	assert.ErrorContains(t, err, "subject")
}
