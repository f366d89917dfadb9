// Package sourcetest provides scripted frame sources for tests.
package sourcetest

import (
	"errors"
	"sync"

	"dualdetect/internal/source"

	"gocv.io/x/gocv"
)

const (
	DefaultWidth  = 160
	DefaultHeight = 120
)

// Source yields black BGR frames until Frames is reached (negative means
// forever). Every read can optionally block on Gate.
type Source struct {
	Frames   int
	Width    int
	Height   int
	Gate     chan struct{}
	CloseErr error // Returned by every Close

	onClose func()

	mu     sync.Mutex
	reads  int
	closes int
}

// NewSource returns a Source yielding n frames of the default size.
func NewSource(n int) *Source {
	return &Source{Frames: n, Width: DefaultWidth, Height: DefaultHeight}
}

// Read implements source.Source.
func (s *Source) Read(dst *gocv.Mat) bool {
	if s.Gate != nil {
		<-s.Gate
	}

	s.mu.Lock()
	if s.closes > 0 || (s.Frames >= 0 && s.reads >= s.Frames) {
		s.mu.Unlock()
		return false
	}
	s.reads++
	s.mu.Unlock()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.Height, s.Width, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(dst)
	return true
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closes++
	first := s.closes == 1
	s.mu.Unlock()

	if first && s.onClose != nil {
		s.onClose()
	}
	return s.CloseErr
}

// Reads returns how many frames were handed out.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closes returns how many times Close was called.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// ErrUnavailable is returned by Opener for ids it does not know.
var ErrUnavailable = errors.New("device unavailable")

// Opener hands out scripted sources by id and tracks open handles.
type Opener struct {
	mu      sync.Mutex
	devices map[string]func() *Source
	opened  []*Source
	opens   map[string]int
	open    int
	maxOpen int
	gate    chan struct{}
	pending int
}

// NewOpener returns an Opener that knows no devices.
func NewOpener() *Opener {
	return &Opener{
		devices: make(map[string]func() *Source),
		opens:   make(map[string]int),
	}
}

// Add registers a device producing a fresh source per open.
func (o *Opener) Add(id string, factory func() *Source) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.devices[id] = factory
	return o
}

// AddReadable registers a device yielding frames forever.
func (o *Opener) AddReadable(id string) *Opener {
	return o.Add(id, func() *Source { return NewSource(-1) })
}

// AddUnreadable registers a device that opens but never yields a frame.
func (o *Opener) AddUnreadable(id string) *Opener {
	return o.Add(id, func() *Source { return NewSource(0) })
}

// Block makes every later Open wait until gate is closed or receives.
func (o *Opener) Block(gate chan struct{}) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gate = gate
	return o
}

// Pending returns how many Open calls are waiting on the gate.
func (o *Opener) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// Open implements source.Opener.
func (o *Opener) Open(id string) (source.Source, error) {
	o.mu.Lock()
	if gate := o.gate; gate != nil {
		o.pending++
		o.mu.Unlock()
		<-gate
		o.mu.Lock()
		o.pending--
	}
	defer o.mu.Unlock()

	factory, ok := o.devices[id]
	if !ok {
		return nil, ErrUnavailable
	}
	src := factory()
	src.onClose = o.released
	o.opened = append(o.opened, src)
	o.opens[id]++
	o.open++
	if o.open > o.maxOpen {
		o.maxOpen = o.open
	}
	return src, nil
}

func (o *Opener) released() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open--
}

// MaxOpen returns the largest number of simultaneously open sources seen.
func (o *Opener) MaxOpen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxOpen
}

// Opens returns how many times id was opened.
func (o *Opener) Opens(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[id]
}

// Leaked returns the number of opened sources never closed.
func (o *Opener) Leaked() int {
	o.mu.Lock()
	opened := append([]*Source(nil), o.opened...)
	o.mu.Unlock()

	leaked := 0
	for _, src := range opened {
		if src.Closes() == 0 {
			leaked++
		}
	}
	return leaked
}
