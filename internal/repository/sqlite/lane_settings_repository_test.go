package sqlite

import (
	"path/filepath"
	"testing"

	"dualdetect/internal/model"
	"dualdetect/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *LaneSettingsRepository {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLaneSettingsRepository(db)
}

func TestLaneSettings_SaveAndGet(t *testing.T) {
	repo := newTestRepo(t)

	in := &model.LaneSettings{Lane: "animal", SourceID: "2", Threshold: 0.6}
	require.NoError(t, repo.Save(in))
	assert.False(t, in.UpdatedAt.IsZero())

	got, err := repo.Get("animal")
	require.NoError(t, err)
	assert.Equal(t, "animal", got.Lane)
	assert.Equal(t, "2", got.SourceID)
	assert.Equal(t, "", got.Category)
	assert.InDelta(t, 0.6, got.Threshold, 1e-9)
}

func TestLaneSettings_SaveReplaces(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Save(&model.LaneSettings{Lane: "human", SourceID: "0", Category: "person"}))
	require.NoError(t, repo.Save(&model.LaneSettings{Lane: "human", SourceID: "http://phone:8080/video", Category: "person", Threshold: 0.3}))

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "http://phone:8080/video", all[0].SourceID)
	assert.InDelta(t, 0.3, all[0].Threshold, 1e-9)
}

func TestLaneSettings_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get("animal")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLaneSettings_GetAllOrderedAndDelete(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Save(&model.LaneSettings{Lane: "human"}))
	require.NoError(t, repo.Save(&model.LaneSettings{Lane: "animal"}))

	all, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "animal", all[0].Lane)
	assert.Equal(t, "human", all[1].Lane)

	require.NoError(t, repo.Delete("animal"))
	_, err = repo.Get("animal")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
