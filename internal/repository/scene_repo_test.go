package repository

import (
	"testing"

	"github.com/embedops/mediacore/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSceneTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Scene{})
	require.NoError(t, err)

	return db
}

func TestSceneRepository_UpsertThenGet(t *testing.T) {
	db := setupSceneTestDB(t)
	repo := NewSceneRepository(db)

	scene := &models.Scene{
		ID:   "scene-1",
		Name: "Wide Shot",
		Slots: []models.LayoutSlot{
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam1"}},
		},
	}
	require.NoError(t, repo.Upsert(scene))

	got, err := repo.Get("scene-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Wide Shot", got.Name)
	assert.Len(t, got.Slots, 1)
}

func TestSceneRepository_GetReturnsNilNilWhenMissing(t *testing.T) {
	db := setupSceneTestDB(t)
	repo := NewSceneRepository(db)

	got, err := repo.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSceneRepository_List(t *testing.T) {
	db := setupSceneTestDB(t)
	repo := NewSceneRepository(db)

	require.NoError(t, repo.Upsert(&models.Scene{ID: "a", Name: "A"}))
	require.NoError(t, repo.Upsert(&models.Scene{ID: "b", Name: "B"}))

	scenes, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, scenes, 2)
}

func TestSceneRepository_Delete(t *testing.T) {
	db := setupSceneTestDB(t)
	repo := NewSceneRepository(db)

	require.NoError(t, repo.Upsert(&models.Scene{ID: "a", Name: "A"}))
	require.NoError(t, repo.Delete("a"))

	got, err := repo.Get("a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSceneRepository_UpsertReplacesExisting(t *testing.T) {
	db := setupSceneTestDB(t)
	repo := NewSceneRepository(db)

	require.NoError(t, repo.Upsert(&models.Scene{ID: "a", Name: "Original"}))
	require.NoError(t, repo.Upsert(&models.Scene{ID: "a", Name: "Renamed"}))

	got, err := repo.Get("a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Name)

	all, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
