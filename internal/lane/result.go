package lane

import (
	"image"
	"time"

	"dualdetect/internal/detector"
)

// FrameResult is the output of one processed frame. Sinks must not modify it.
type FrameResult struct {
	Lane       string               `json:"lane"`
	RunID      string               `json:"runId"`
	Sequence   uint64               `json:"seq"`
	Count      int                  `json:"count"`
	Detections []detector.Detection `json:"detections"`
	Frame      *image.RGBA          `json:"-"`
	CapturedAt time.Time            `json:"capturedAt"`
}

// Sink receives frame results in sequence order. Put must not block for long:
// it runs on the lane's worker.
type Sink interface {
	Put(result FrameResult)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(FrameResult)

// Put calls f(result).
func (f SinkFunc) Put(result FrameResult) {
	f(result)
}

// ExitReason says why a detection loop ended.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitSourceExhausted
	ExitStoppedByOperator
	ExitInferenceFailure
)

func (r ExitReason) String() string {
	switch r {
	case ExitSourceExhausted:
		return "SourceExhausted"
	case ExitStoppedByOperator:
		return "StoppedByOperator"
	case ExitInferenceFailure:
		return "InferenceFailure"
	default:
		return ""
	}
}

// MarshalText encodes the reason by name.
func (r ExitReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
