package dto

import "dualdetect/internal/detector"

// DetectionResult is one accepted detection as sent to viewers.
type DetectionResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// FromDetections converts detections to their wire form.
func FromDetections(dets []detector.Detection) []DetectionResult {
	out := make([]DetectionResult, 0, len(dets))
	for _, d := range dets {
		out = append(out, DetectionResult{
			Label:      d.Label,
			Confidence: d.Confidence,
			X:          d.Box.Min.X,
			Y:          d.Box.Min.Y,
			Width:      d.Box.Dx(),
			Height:     d.Box.Dy(),
		})
	}
	return out
}
