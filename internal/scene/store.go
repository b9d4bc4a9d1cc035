// Package scene implements the scene store (C7): a persistent, validated
// catalogue of mixer layouts, seeded with a small set of built-ins so a
// fresh install can mix without prior configuration.
package scene

import (
	"fmt"
	"sort"
	"sync"

	"github.com/embedops/mediacore/internal/models"
)

// Repository is the persistence boundary the Store delegates to; GORM-backed
// in production (internal/repository), an in-memory fake in tests.
type Repository interface {
	List() ([]models.Scene, error)
	Get(id string) (*models.Scene, error)
	Upsert(scene *models.Scene) error
	Delete(id string) error
}

// KnownCameras resolves which camera IDs currently exist, used to validate a
// scene's input_refs syntactically at upsert time.
type KnownCameras interface {
	Exists(id models.CameraID) bool
}

// Store owns the catalogue. All operations serialize behind mu, matching
// the "scene updates serialize behind the mixer actor" ordering guarantee
// one level down — the store itself is the simpler of the two locks.
type Store struct {
	mu    sync.Mutex
	repo  Repository
	cams  KnownCameras
}

// New builds a Store over repo, seeding built-in scenes if the catalogue is
// empty.
func New(repo Repository, cams KnownCameras) (*Store, error) {
	s := &Store{repo: repo, cams: cams}
	existing, err := repo.List()
	if err != nil {
		return nil, fmt.Errorf("listing scenes: %w", err)
	}
	if len(existing) == 0 {
		for _, b := range BuiltinScenes() {
			b := b
			if err := repo.Upsert(&b); err != nil {
				return nil, fmt.Errorf("seeding builtin scene %s: %w", b.ID, err)
			}
		}
	}
	return s, nil
}

// Get returns one scene by ID.
func (s *Store) Get(id string) (*models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, models.NewCoreError(models.ErrNotFound, fmt.Sprintf("scene %q not found", id))
	}
	return sc, nil
}

// List returns every scene, built-ins first, then by name.
func (s *Store) List() ([]models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scenes, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	sort.Slice(scenes, func(i, j int) bool {
		if scenes[i].Builtin != scenes[j].Builtin {
			return scenes[i].Builtin
		}
		return scenes[i].Name < scenes[j].Name
	})
	return scenes, nil
}

// Upsert validates and persists a scene.
func (s *Store) Upsert(sc *models.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(sc); err != nil {
		return err
	}
	return s.repo.Upsert(sc)
}

// Delete removes a scene. Built-in scenes cannot be deleted.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.Get(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return models.NewCoreError(models.ErrNotFound, fmt.Sprintf("scene %q not found", id))
	}
	if existing.Builtin {
		return models.NewCoreError(models.ErrConflict, "built-in scenes cannot be deleted")
	}
	return s.repo.Delete(id)
}

// validate enforces §4.7's upsert invariants: slot area within canvas,
// unique z-order among visible slots, and syntactically resolvable inputs.
func (s *Store) validate(sc *models.Scene) error {
	if sc.ID == "" {
		return models.NewCoreError(models.ErrConfigInvalid, "scene id must not be empty")
	}
	if sc.CanvasWidth <= 0 || sc.CanvasHeight <= 0 {
		return models.NewCoreError(models.ErrConfigInvalid, "scene canvas dimensions must be positive")
	}

	seenZ := make(map[int]bool)
	for i, slot := range sc.Slots {
		if slot.X < 0 || slot.Y < 0 || slot.Width <= 0 || slot.Height <= 0 {
			return models.NewCoreError(models.ErrConfigInvalid, fmt.Sprintf("slot %d has invalid geometry", i))
		}
		if slot.X+slot.Width > sc.CanvasWidth || slot.Y+slot.Height > sc.CanvasHeight {
			return models.NewCoreError(models.ErrConfigInvalid, fmt.Sprintf("slot %d extends outside the canvas", i))
		}
		if slot.Visible {
			if seenZ[slot.ZOrder] {
				return models.NewCoreError(models.ErrConfigInvalid, fmt.Sprintf("duplicate z-order %d among visible slots", slot.ZOrder))
			}
			seenZ[slot.ZOrder] = true
		}
		if err := s.validateInput(slot.Input); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) validateInput(in models.MixerInput) error {
	switch in.Kind {
	case models.InputCamera:
		if in.CameraID == "" {
			return models.NewCoreError(models.ErrConfigInvalid, "camera input requires a camera_id")
		}
		if s.cams != nil && !s.cams.Exists(in.CameraID) {
			return models.NewCoreError(models.ErrConfigInvalid, fmt.Sprintf("unknown camera_id %q", in.CameraID))
		}
	case models.InputFile:
		if in.FilePath == "" {
			return models.NewCoreError(models.ErrConfigInvalid, "file input requires a file_path")
		}
	case models.InputGraphic:
		if in.GraphicID == "" {
			return models.NewCoreError(models.ErrConfigInvalid, "graphic input requires a graphic_id")
		}
	case models.InputGuest:
		if in.GuestSlot == "" {
			return models.NewCoreError(models.ErrConfigInvalid, "guest input requires a guest_slot")
		}
	case models.InputTestPattern:
		// no further fields required
	default:
		return models.NewCoreError(models.ErrConfigInvalid, fmt.Sprintf("unknown input kind %q", in.Kind))
	}
	return nil
}
