// Package repository provides GORM-backed data access implementations.
package repository

import (
	"context"

	"github.com/embedops/mediacore/internal/models"
	"gorm.io/gorm"
)

// SceneRepository implements scene.Repository using GORM.
type SceneRepository struct {
	db *gorm.DB
}

// NewSceneRepository creates a new SceneRepository.
func NewSceneRepository(db *gorm.DB) *SceneRepository {
	return &SceneRepository{db: db}
}

// List retrieves every scene.
func (r *SceneRepository) List() ([]models.Scene, error) {
	var scenes []models.Scene
	if err := r.db.WithContext(context.Background()).Find(&scenes).Error; err != nil {
		return nil, err
	}
	return scenes, nil
}

// Get retrieves one scene by ID, returning (nil, nil) if not found.
func (r *SceneRepository) Get(id string) (*models.Scene, error) {
	var scene models.Scene
	if err := r.db.WithContext(context.Background()).First(&scene, "scene_id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &scene, nil
}

// Upsert creates or replaces a scene.
func (r *SceneRepository) Upsert(scene *models.Scene) error {
	return r.db.WithContext(context.Background()).Save(scene).Error
}

// Delete removes a scene by ID.
func (r *SceneRepository) Delete(id string) error {
	return r.db.WithContext(context.Background()).Delete(&models.Scene{}, "scene_id = ?", id).Error
}
