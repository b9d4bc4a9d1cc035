package repository

import (
	"testing"
	"time"

	"github.com/embedops/mediacore/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRecordingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.RecordingSession{})
	require.NoError(t, err)

	return db
}

func TestRecordingRepository_SaveThenGetRoundTripsCameras(t *testing.T) {
	db := setupRecordingTestDB(t)
	repo := NewRecordingRepository(db)

	sess := &models.RecordingSession{
		ID:        "sess-1",
		Name:      "Sunday service",
		StartedAt: time.Now(),
		Cameras: map[models.CameraID]*models.RecordingLeg{
			"cam1": {CameraID: "cam1", State: models.LegRecording, FileSequence: 1},
		},
	}
	require.NoError(t, repo.Save(sess))

	got, err := repo.Get("sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sunday service", got.Name)
	require.Contains(t, got.Cameras, models.CameraID("cam1"))
	assert.Equal(t, models.LegRecording, got.Cameras["cam1"].State)
}

func TestRecordingRepository_GetReturnsNilNilWhenMissing(t *testing.T) {
	db := setupRecordingTestDB(t)
	repo := NewRecordingRepository(db)

	got, err := repo.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordingRepository_ListActiveExcludesEndedSessions(t *testing.T) {
	db := setupRecordingTestDB(t)
	repo := NewRecordingRepository(db)

	ended := time.Now()
	require.NoError(t, repo.Save(&models.RecordingSession{
		ID:        "active-1",
		StartedAt: time.Now(),
	}))
	require.NoError(t, repo.Save(&models.RecordingSession{
		ID:        "ended-1",
		StartedAt: time.Now(),
		EndedAt:   &ended,
	}))

	active, err := repo.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active-1", active[0].ID)
}

func TestRecordingRepository_SaveIsIdempotentOnSameID(t *testing.T) {
	db := setupRecordingTestDB(t)
	repo := NewRecordingRepository(db)

	sess := &models.RecordingSession{ID: "sess-1", StartedAt: time.Now(), Name: "first"}
	require.NoError(t, repo.Save(sess))

	sess.Name = "renamed"
	require.NoError(t, repo.Save(sess))

	got, err := repo.Get("sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "renamed", got.Name)

	active, err := repo.ListActive()
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
