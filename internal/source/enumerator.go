package source

import (
	"fmt"
	"strconv"
	"time"

	"dualdetect/internal/logger"

	"gocv.io/x/gocv"
)

const (
	// DefaultMaxIndex is the highest device index probed by default.
	DefaultMaxIndex = 4

	BuiltInName        = "Built-in Webcam"
	externalNameFormat = "External Camera %d"
)

// FrameSource is one capturable video origin found by an enumeration pass.
type FrameSource struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Snapshot is the immutable result of one enumeration pass.
type Snapshot struct {
	sources []FrameSource
	byName  map[string]FrameSource
	TakenAt time.Time
}

// NewSnapshot builds a snapshot from sources in discovery order. Later
// duplicates of a display name are ignored.
func NewSnapshot(sources []FrameSource) *Snapshot {
	s := &Snapshot{
		byName:  make(map[string]FrameSource, len(sources)),
		TakenAt: time.Now(),
	}
	for _, src := range sources {
		if _, dup := s.byName[src.DisplayName]; dup {
			continue
		}
		s.byName[src.DisplayName] = src
		s.sources = append(s.sources, src)
	}
	return s
}

// Lookup resolves a display name.
func (s *Snapshot) Lookup(name string) (FrameSource, bool) {
	if s == nil {
		return FrameSource{}, false
	}
	src, ok := s.byName[name]
	return src, ok
}

// LookupID resolves a device id.
func (s *Snapshot) LookupID(id string) (FrameSource, bool) {
	if s == nil {
		return FrameSource{}, false
	}
	for _, src := range s.sources {
		if src.ID == id {
			return src, true
		}
	}
	return FrameSource{}, false
}

// Sources returns a copy of the sources in discovery order.
func (s *Snapshot) Sources() []FrameSource {
	if s == nil {
		return nil
	}
	out := make([]FrameSource, len(s.sources))
	copy(out, s.sources)
	return out
}

// Map returns display name -> id.
func (s *Snapshot) Map() map[string]string {
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for _, src := range s.sources {
		out[src.DisplayName] = src.ID
	}
	return out
}

// Len returns the number of sources.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.sources)
}

// Enumerator discovers readable capture devices.
type Enumerator struct {
	opener   Opener
	maxIndex int
	logger   *logger.Logger
}

// NewEnumerator creates an Enumerator probing indices 0..maxIndex.
func NewEnumerator(opener Opener, maxIndex int, log *logger.Logger) *Enumerator {
	if maxIndex < 0 {
		maxIndex = DefaultMaxIndex
	}
	return &Enumerator{opener: opener, maxIndex: maxIndex, logger: log.With("[enumerator]")}
}

// Enumerate probes every candidate index. A device counts only if it opens
// and yields one frame; the probe handle is closed before moving on. The first
// readable device is labeled BuiltInName, later ones "External Camera N".
// An empty snapshot is a valid result.
func (e *Enumerator) Enumerate() *Snapshot {
	return e.EnumerateSkipping(nil)
}

// EnumerateSkipping is Enumerate for a system with live lanes: ids in inUse
// belong to running loops and count as readable without being reopened.
func (e *Enumerator) EnumerateSkipping(inUse map[string]bool) *Snapshot {
	var found []FrameSource
	external := 1

	for index := 0; index <= e.maxIndex; index++ {
		id := strconv.Itoa(index)
		if !inUse[id] && !e.probe(id) {
			continue
		}

		name := BuiltInName
		if len(found) > 0 {
			name = fmt.Sprintf(externalNameFormat, external)
			external++
		}
		found = append(found, FrameSource{ID: id, DisplayName: name})
	}

	return NewSnapshot(found)
}

func (e *Enumerator) probe(id string) bool {
	src, err := e.opener.Open(id)
	if err != nil {
		return false
	}
	defer func() {
		if err := src.Close(); err != nil {
			e.logger.Warning("Failed to release device %s after enumeration: %v", id, err)
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	return src.Read(&frame) && !frame.Empty()
}
