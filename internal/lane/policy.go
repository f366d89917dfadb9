package lane

import (
	"errors"
	"fmt"
	"math"

	"dualdetect/internal/detector"
)

// ErrInvalidPolicy is returned for thresholds outside [0,1].
var ErrInvalidPolicy = errors.New("invalid acceptance policy")

// Policy decides which detections a lane draws and counts.
type Policy struct {
	Category  string  `json:"category"` // Empty accepts every label
	Threshold float64 `json:"threshold"`
}

// Validate checks the threshold range.
func (p Policy) Validate() error {
	if math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v not in [0,1]", ErrInvalidPolicy, p.Threshold)
	}
	return nil
}

// Accept reports whether d passes the threshold (inclusive) and the category filter.
func (p Policy) Accept(d detector.Detection) bool {
	if d.Confidence < p.Threshold {
		return false
	}
	return p.Category == "" || d.Label == p.Category
}

// Filter returns the accepted detections in their original order.
func (p Policy) Filter(detections []detector.Detection) []detector.Detection {
	accepted := make([]detector.Detection, 0, len(detections))
	for _, d := range detections {
		if p.Accept(d) {
			accepted = append(accepted, d)
		}
	}
	return accepted
}
