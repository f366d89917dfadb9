package dto

import (
	"time"

	"dualdetect/internal/source"
)

// SourcesResponse lists the sources of the current enumeration snapshot.
type SourcesResponse struct {
	Sources []source.FrameSource `json:"sources"`
	ByName  map[string]string    `json:"byName"`
	TakenAt time.Time            `json:"takenAt"`
}

// NewSourcesResponse builds the response for snap, which may be nil.
func NewSourcesResponse(snap *source.Snapshot) SourcesResponse {
	resp := SourcesResponse{
		Sources: snap.Sources(),
		ByName:  snap.Map(),
	}
	if resp.Sources == nil {
		resp.Sources = []source.FrameSource{}
	}
	if snap != nil {
		resp.TakenAt = snap.TakenAt
	}
	return resp
}
