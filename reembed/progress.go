package reembed

import (
	"fmt"
	"io"
	"time"
)

// ProgressTracker tracks and reports progress of a long-running operation.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	processed      int
	reportInterval int
	unit           string
	startTime      time.Time
	lastReport     int
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress updates (use io.Discard for silent mode)
// total: total number of items to process
// reportInterval: report progress every N items
// unit: name of the items in rate output, e.g. "chunks"
func NewProgressTracker(writer io.Writer, total, reportInterval int, unit string) *ProgressTracker {
	if writer == nil {
		writer = io.Discard
	}
	if unit == "" {
		unit = "records"
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
		unit:           unit,
	}
}

// Start begins tracking progress
func (pt *ProgressTracker) Start() {
	pt.startTime = time.Now()
	pt.processed = 0
	pt.lastReport = 0
}

// Update records additional items processed
func (pt *ProgressTracker) Update(count int) {
	pt.processed += count

	if pt.processed-pt.lastReport >= pt.reportInterval || pt.processed >= pt.total {
		pt.report()
		pt.lastReport = pt.processed
	}
}

// Finish completes progress tracking and prints final report
func (pt *ProgressTracker) Finish() {
	pt.report()
	fmt.Fprintln(pt.writer)
}

// Processed returns the number of items recorded so far.
func (pt *ProgressTracker) Processed() int {
	return pt.processed
}

// Elapsed returns time since Start was called
func (pt *ProgressTracker) Elapsed() time.Duration {
	if pt.startTime.IsZero() {
		return 0
	}
	return time.Since(pt.startTime)
}

func (pt *ProgressTracker) report() {
	if pt.startTime.IsZero() {
		return
	}

	elapsed := time.Since(pt.startTime).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(pt.processed) / elapsed
	}

	percent := 100.0
	if pt.total > 0 {
		percent = float64(pt.processed) / float64(pt.total) * 100
	}

	fmt.Fprintf(pt.writer, "\rProgress: %d/%d (%.1f%%) - %.1f %s/s",
		pt.processed, pt.total, percent, rate, pt.unit)
}
