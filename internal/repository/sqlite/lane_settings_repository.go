package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dualdetect/internal/model"
	"dualdetect/internal/repository"
)

// LaneSettingsRepository implements repository.LaneSettingsRepository for SQLite.
type LaneSettingsRepository struct {
	db *DB
}

// NewLaneSettingsRepository creates a new SQLite lane settings repository.
func NewLaneSettingsRepository(db *DB) *LaneSettingsRepository {
	return &LaneSettingsRepository{db: db}
}

// Save upserts the settings for s.Lane and stamps UpdatedAt.
func (r *LaneSettingsRepository) Save(s *model.LaneSettings) error {
	r.db.Lock()
	defer r.db.Unlock()

	s.UpdatedAt = time.Now().UTC()
	_, err := r.db.Conn().Exec(`
		INSERT INTO lane_settings (lane, source_id, category, threshold, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(lane) DO UPDATE SET
			source_id = excluded.source_id,
			category = excluded.category,
			threshold = excluded.threshold,
			updated_at = excluded.updated_at
	`, s.Lane, s.SourceID, s.Category, s.Threshold, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save lane settings: %w", err)
	}
	return nil
}

// Get retrieves the settings saved for lane.
func (r *LaneSettingsRepository) Get(lane string) (*model.LaneSettings, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var s model.LaneSettings
	err := r.db.Conn().QueryRow(`
		SELECT lane, source_id, category, threshold, updated_at
		FROM lane_settings WHERE lane = ?
	`, lane).Scan(&s.Lane, &s.SourceID, &s.Category, &s.Threshold, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lane settings %s: %w", lane, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lane settings: %w", err)
	}
	return &s, nil
}

// GetAll retrieves the settings of every lane ordered by lane id.
func (r *LaneSettingsRepository) GetAll() ([]model.LaneSettings, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT lane, source_id, category, threshold, updated_at
		FROM lane_settings ORDER BY lane
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lane settings: %w", err)
	}
	defer rows.Close()

	var settings []model.LaneSettings
	for rows.Next() {
		var s model.LaneSettings
		if err := rows.Scan(&s.Lane, &s.SourceID, &s.Category, &s.Threshold, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lane settings: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Delete removes the settings saved for lane.
func (r *LaneSettingsRepository) Delete(lane string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec("DELETE FROM lane_settings WHERE lane = ?", lane); err != nil {
		return fmt.Errorf("failed to delete lane settings: %w", err)
	}
	return nil
}

var _ repository.LaneSettingsRepository = (*LaneSettingsRepository)(nil)
