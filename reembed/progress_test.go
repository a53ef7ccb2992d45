package reembed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	assert.True(t, tracker.started, "should be started")

	tracker.Update(25, 0)
	tracker.Update(50, 1)
	tracker.Update(100, 1)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0), "elapsed time should be positive")

	output := buf.String()
	assert.Contains(t, output, "100/100", "should show completion")
	assert.Contains(t, output, "100.0%", "should show 100%")
	assert.Contains(t, output, "1 failed", "should show failures")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Update(75, 0)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "100/100", "finish should set to total")
	assert.Contains(t, output, "100.0%", "finish should show 100%")
	assert.True(t, strings.HasSuffix(output, "\n"), "finish should print newline")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 10)

	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0", "should handle zero total")
}

func TestProgressTracker_UpdateBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Update(150, 0)

	assert.Contains(t, buf.String(), "100/100", "should not exceed total")
}

func TestProgressTracker_Rate(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1000, 100)

	tracker.Start()
	time.Sleep(20 * time.Millisecond)
	tracker.Update(100, 0)
	tracker.Finish()

	assert.Contains(t, buf.String(), "restaurants/s", "should show rate")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Update(10, 0)
	tracker.Finish()

	assert.Equal(t, "", buf.String(), "should have no output when not started")
	assert.Equal(t, time.Duration(0), tracker.Elapsed())
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1000, 100)

	tracker.Start()

	tracker.Update(50, 0)
	assert.Equal(t, "", buf.String(), "should not print under interval")

	tracker.Update(100, 0)
	assert.NotEmpty(t, buf.String(), "should print at interval")

	buf.Reset()
	tracker.Update(150, 0)
	assert.Equal(t, "", buf.String(), "interval counts from the last report")

	tracker.Update(250, 0)
	assert.NotEmpty(t, buf.String(), "should print beyond interval")
}

func TestProgressTracker_NilWriter(t *testing.T) {
	tracker := NewProgressTracker(nil, 10, 0)
	tracker.Start()
	tracker.Update(5, 0)
	tracker.Finish()
}
