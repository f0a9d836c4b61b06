package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunSummary(t *testing.T) {
	started := time.Date(2026, 10, 19, 5, 50, 0, 0, time.UTC)
	run := Run{SubjectName: "お子様A", Slot: "09:00", Status: "succeeded", StartedAt: started}
	assert.Equal(t, "2026-10-19 05:50 お子様A 09:00 succeeded", run.Summary())

	run.Committed = true
	assert.Equal(t, "2026-10-19 05:50 お子様A 09:00 succeeded (committed)", run.Summary())

	msg := "reservation button never appeared"
	run = Run{SubjectName: "お子様B", Slot: "16:45", Status: "failed", StartedAt: started, LastError: &msg}
	assert.Equal(t, "2026-10-19 05:50 お子様B 16:45 failed: reservation button never appeared", run.Summary())
}
