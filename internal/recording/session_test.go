package recording

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeLeg struct {
	mu           sync.Mutex
	failAttach   bool
	attached     bool
	detached     bool
	rotateCalls  int
}

func (l *fakeLeg) AttachRecording(sessionID, directory string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAttach {
		return models.NewCoreError(models.ErrNoSignal, "no signal")
	}
	l.attached = true
	return nil
}

func (l *fakeLeg) DetachRecording() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detached = true
	return nil
}

func (l *fakeLeg) RotateRecording() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rotateCalls++
	return nil
}

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]models.RecordingSession
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]models.RecordingSession)}
}

func (r *fakeRepo) Save(sess *models.RecordingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = *sess
	return nil
}

func (r *fakeRepo) Get(id string) (*models.RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *fakeRepo) ListActive() ([]models.RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RecordingSession
	for _, s := range r.sessions {
		if s.Active() {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeDisk struct {
	freeGB float64
}

func (f fakeDisk) FreeGB(path string) (float64, error) { return f.freeGB, nil }

func newTestManager(t *testing.T, disk DiskStatter) (*Manager, *storage.Sandbox) {
	t.Helper()
	box, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)

	cfg := Config{RecordingRoot: box.BaseDir(), WarningGB: 10, MinGB: 2}
	return New(cfg, newFakeRepo(), disk, box, events.New(), testLogger()), box
}

func TestManager_StartSucceedsWhenAllLegsAttach(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	cam1, cam2 := &fakeLeg{}, &fakeLeg{}

	sess, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1, "cam2": cam2}, "test session")
	require.NoError(t, err)
	assert.True(t, sess.Active())
	assert.Len(t, sess.Cameras, 2)
	assert.True(t, cam1.attached)
	assert.True(t, cam2.attached)
}

func TestManager_StartRollsBackWhenEveryLegFails(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	cam1 := &fakeLeg{failAttach: true}

	_, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrPipelineFatal, coreErr.Kind)
}

func TestManager_StartFailsWhenDiskBelowMinimum(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 1})
	cam1 := &fakeLeg{}

	_, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrDiskLow, coreErr.Kind)
}

func TestManager_StartFailsWhenAlreadyActive(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	cam1 := &fakeLeg{}

	_, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.NoError(t, err)

	_, err = m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrConflict, coreErr.Kind)
}

func TestManager_StopDetachesAllLegsAndEndsSession(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	cam1 := &fakeLeg{}

	sess, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.NoError(t, err)

	stopped, err := m.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stopped.Active())
	assert.True(t, cam1.detached)
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	cam1 := &fakeLeg{}

	sess, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.NoError(t, err)

	_, err = m.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	_, err = m.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
}

func TestManager_StopFailsForUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	_, err := m.Stop(context.Background(), "does-not-exist")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrNotFound, coreErr.Kind)
}

func TestManager_DiskStatusReportsBelowWarningAndMin(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 5})
	status, err := m.DiskStatus()
	require.NoError(t, err)
	assert.True(t, status.BelowWarning)
	assert.False(t, status.BelowMin)
}

func TestManager_RotateIfNeededRotatesLegsPastSizeThreshold(t *testing.T) {
	m, _ := newTestManager(t, fakeDisk{freeGB: 100})
	m.cfg.RotateMaxBytes = 100

	cam1 := &fakeLeg{}
	sess, err := m.Start(context.Background(), map[models.CameraID]CameraLeg{"cam1": cam1}, "")
	require.NoError(t, err)

	sess.Cameras["cam1"].BytesWritten = 200
	m.RotateIfNeeded(context.Background())

	assert.Equal(t, 1, cam1.rotateCalls)
}
