package repository

import (
	"errors"

	"dualdetect/internal/model"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("not found")

// LaneSettingsRepository defines the interface for operator lane preferences.
type LaneSettingsRepository interface {
	// Save inserts or replaces the settings of s.Lane.
	Save(s *model.LaneSettings) error

	// Get returns the saved settings of lane, or ErrNotFound.
	Get(lane string) (*model.LaneSettings, error)
	GetAll() ([]model.LaneSettings, error)

	Delete(lane string) error
}
