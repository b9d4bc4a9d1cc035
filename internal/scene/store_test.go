package scene

import (
	"sync"
	"testing"

	"github.com/embedops/mediacore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu     sync.Mutex
	scenes map[string]models.Scene
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{scenes: make(map[string]models.Scene)}
}

func (r *fakeRepo) List() ([]models.Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Scene, 0, len(r.scenes))
	for _, s := range r.scenes {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) Get(id string) (*models.Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scenes[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *fakeRepo) Upsert(s *models.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes[s.ID] = *s
	return nil
}

func (r *fakeRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scenes, id)
	return nil
}

type fakeKnownCameras struct{ ids map[models.CameraID]bool }

func (f fakeKnownCameras) Exists(id models.CameraID) bool { return f.ids[id] }

func TestNew_SeedsBuiltinScenesWhenEmpty(t *testing.T) {
	repo := newFakeRepo()
	_, err := New(repo, fakeKnownCameras{ids: map[models.CameraID]bool{"cam1": true, "cam2": true}})
	require.NoError(t, err)

	scenes, err := repo.List()
	require.NoError(t, err)
	assert.Len(t, scenes, len(BuiltinScenes()))
}

func TestNew_DoesNotReseedWhenCatalogueNonEmpty(t *testing.T) {
	repo := newFakeRepo()
	require.NoError(t, repo.Upsert(&models.Scene{ID: "custom", CanvasWidth: 100, CanvasHeight: 100}))

	_, err := New(repo, fakeKnownCameras{})
	require.NoError(t, err)

	scenes, _ := repo.List()
	assert.Len(t, scenes, 1)
}

func TestStore_UpsertRejectsSlotOutsideCanvas(t *testing.T) {
	repo := newFakeRepo()
	store, err := New(repo, fakeKnownCameras{ids: map[models.CameraID]bool{"cam1": true}})
	require.NoError(t, err)

	err = store.Upsert(&models.Scene{
		ID: "bad", CanvasWidth: 1920, CanvasHeight: 1080,
		Slots: []models.LayoutSlot{
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam1"}, X: 1800, Y: 0, Width: 500, Height: 500, Visible: true},
		},
	})
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrConfigInvalid, coreErr.Kind)
}

func TestStore_UpsertRejectsDuplicateZOrderAmongVisibleSlots(t *testing.T) {
	repo := newFakeRepo()
	store, err := New(repo, fakeKnownCameras{ids: map[models.CameraID]bool{"cam1": true, "cam2": true}})
	require.NoError(t, err)

	err = store.Upsert(&models.Scene{
		ID: "bad-z", CanvasWidth: 1920, CanvasHeight: 1080,
		Slots: []models.LayoutSlot{
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam1"}, X: 0, Y: 0, Width: 100, Height: 100, ZOrder: 1, Visible: true},
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam2"}, X: 200, Y: 0, Width: 100, Height: 100, ZOrder: 1, Visible: true},
		},
	})
	require.Error(t, err)
}

func TestStore_UpsertRejectsUnknownCamera(t *testing.T) {
	repo := newFakeRepo()
	store, err := New(repo, fakeKnownCameras{ids: map[models.CameraID]bool{"cam1": true}})
	require.NoError(t, err)

	err = store.Upsert(&models.Scene{
		ID: "unknown-cam", CanvasWidth: 1920, CanvasHeight: 1080,
		Slots: []models.LayoutSlot{
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam99"}, X: 0, Y: 0, Width: 100, Height: 100, Visible: true},
		},
	})
	require.Error(t, err)
}

func TestStore_DeleteRejectsBuiltin(t *testing.T) {
	repo := newFakeRepo()
	store, err := New(repo, fakeKnownCameras{ids: map[models.CameraID]bool{"cam1": true, "cam2": true, "cam3": true, "cam4": true}})
	require.NoError(t, err)

	err = store.Delete("builtin-quad")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrConflict, coreErr.Kind)
}

func TestStore_GetReturnsNotFoundForMissingScene(t *testing.T) {
	repo := newFakeRepo()
	store, err := New(repo, fakeKnownCameras{})
	require.NoError(t, err)

	_, err = store.Get("does-not-exist")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrNotFound, coreErr.Kind)
}
