// Package detectortest provides a scripted Detector for tests.
package detectortest

import (
	"sync"
	"sync/atomic"

	"dualdetect/internal/detector"

	"gocv.io/x/gocv"
)

// Detector returns Results[i] on the i-th call (the last entry repeats once
// the script runs out). FailAt makes call number FailAt (0-based) return Err.
// Gate, when set, makes every call wait for a token.
type Detector struct {
	Results [][]detector.Detection
	FailAt  int
	Err     error
	Gate    chan struct{}

	mu       sync.Mutex
	calls    int
	inFlight atomic.Int32
	overlap  atomic.Bool
	closed   atomic.Bool
	late     atomic.Bool
}

// New returns a Detector answering with results in order and never failing.
func New(results ...[]detector.Detection) *Detector {
	return &Detector{Results: results, FailAt: -1}
}

// Detect implements detector.Detector.
func (d *Detector) Detect(frame gocv.Mat) ([]detector.Detection, error) {
	if d.closed.Load() {
		d.late.Store(true)
	}
	if d.inFlight.Add(1) > 1 {
		d.overlap.Store(true)
	}
	defer d.inFlight.Add(-1)

	if d.Gate != nil {
		<-d.Gate
	}

	d.mu.Lock()
	n := d.calls
	d.calls++
	d.mu.Unlock()

	if n == d.FailAt {
		return nil, d.Err
	}
	if len(d.Results) == 0 {
		return nil, nil
	}
	if n >= len(d.Results) {
		n = len(d.Results) - 1
	}
	out := make([]detector.Detection, len(d.Results[n]))
	copy(out, d.Results[n])
	return out, nil
}

// Close implements detector.Detector.
func (d *Detector) Close() error {
	if d.inFlight.Load() > 0 {
		d.late.Store(true)
	}
	d.closed.Store(true)
	return nil
}

// Calls returns the number of Detect calls so far.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Overlapped reports whether two Detect calls ever ran at the same time.
func (d *Detector) Overlapped() bool {
	return d.overlap.Load()
}

// UsedAfterClose reports whether Detect ran after or during Close.
func (d *Detector) UsedAfterClose() bool {
	return d.late.Load()
}

// Closed reports whether Close was called.
func (d *Detector) Closed() bool {
	return d.closed.Load()
}
