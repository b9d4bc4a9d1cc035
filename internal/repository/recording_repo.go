package repository

import (
	"context"

	"github.com/embedops/mediacore/internal/models"
	"gorm.io/gorm"
)

// RecordingRepository implements recording.Repository using GORM.
type RecordingRepository struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *RecordingRepository {
	return &RecordingRepository{db: db}
}

// Save creates or replaces a recording session row.
func (r *RecordingRepository) Save(sess *models.RecordingSession) error {
	return r.db.WithContext(context.Background()).Save(sess).Error
}

// Get retrieves one session by ID, returning (nil, nil) if not found.
func (r *RecordingRepository) Get(id string) (*models.RecordingSession, error) {
	var sess models.RecordingSession
	if err := r.db.WithContext(context.Background()).First(&sess, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// ListActive retrieves every session that has not yet ended.
func (r *RecordingRepository) ListActive() ([]models.RecordingSession, error) {
	var sessions []models.RecordingSession
	if err := r.db.WithContext(context.Background()).Where("ended_at IS NULL").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
