package reembed

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Reports(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker(&buf, 100, 10, "chunks")

	pt.Start()
	pt.Update(5)
	assert.Empty(t, buf.String(), "should not report before interval")

	pt.Update(5)
	assert.Contains(t, buf.String(), "10/100")
	assert.Contains(t, buf.String(), "10.0%")

	pt.Update(90)
	pt.Finish()

	output := buf.String()
	assert.Contains(t, output, "100/100")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "chunks/s")
	assert.Equal(t, 100, pt.Processed())
}

func TestProgressTracker_DefaultUnit(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker(&buf, 1, 1, "")
	pt.Start()
	pt.Update(1)
	assert.Contains(t, buf.String(), "records/s")
}

func TestProgressTracker_NoOutputWhenNotStarted(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker(&buf, 10, 1, "chunks")
	pt.Update(5)
	assert.Empty(t, buf.String())
	assert.Zero(t, pt.Elapsed())
}

func TestProgressTracker_Elapsed(t *testing.T) {
	pt := NewProgressTracker(io.Discard, 10, 1, "chunks")
	pt.Start()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, pt.Elapsed(), 5*time.Millisecond)
}

func TestProgressTracker_NilWriter(t *testing.T) {
	pt := NewProgressTracker(nil, 10, 1, "chunks")
	pt.Start()
	assert.NotPanics(t, func() {
		pt.Update(10)
		pt.Finish()
	})
}
