package dto

import (
	"encoding/json"
	"time"
)

// FrameMessage is the websocket payload for one annotated frame of a lane.
type FrameMessage struct {
	Lane       string            `json:"lane"`
	Noun       string            `json:"noun,omitempty"` // "animals", "humans"
	RunID      string            `json:"runId"`
	Seq        uint64            `json:"seq"`
	Count      int               `json:"count"`
	Detections []DetectionResult `json:"detections"`
	Image      string            `json:"image,omitempty"` // base64 JPEG
	CapturedAt time.Time         `json:"capturedAt"`
}

// MarshalJSON formats the capture time as a wall clock with milliseconds.
func (m FrameMessage) MarshalJSON() ([]byte, error) {
	type Alias FrameMessage
	return json.Marshal(&struct {
		CapturedAt string `json:"capturedAt"`
		Alias
	}{
		CapturedAt: m.CapturedAt.Format("15:04:05.000"),
		Alias:      (Alias)(m),
	})
}
