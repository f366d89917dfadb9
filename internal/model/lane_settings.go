package model

import "time"

// LaneSettings is the last start configuration an operator used on a lane.
type LaneSettings struct {
	Lane      string    `json:"lane"`
	SourceID  string    `json:"sourceId"` // Device index or stream URL
	Category  string    `json:"category"`
	Threshold float64   `json:"threshold"`
	UpdatedAt time.Time `json:"updatedAt"`
}
