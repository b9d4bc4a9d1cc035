// Package recording implements the recording session component (C6):
// grouping simultaneous per-camera recordings into a session that starts
// and stops as a unit, persisting durable metadata so a crash mid-session
// can be recovered, and gating new sessions on free disk space.
package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/storage"
)

// CameraLeg is the ingest-worker surface a session drives per camera.
type CameraLeg interface {
	AttachRecording(sessionID, directory string) error
	DetachRecording() error
	RotateRecording() error
}

// Repository is the queryable index a session is additionally persisted
// to, alongside its on-disk JSON recovery artifact.
type Repository interface {
	Save(sess *models.RecordingSession) error
	Get(id string) (*models.RecordingSession, error)
	ListActive() ([]models.RecordingSession, error)
}

// DiskStatter reports free space on the recording root.
type DiskStatter interface {
	FreeGB(path string) (float64, error)
}

// Config bundles the session manager's tunables.
type Config struct {
	RecordingRoot   string
	WarningGB       float64
	MinGB           float64
	RotateMaxBytes  int64
	RotateMaxWall   time.Duration
}

// Manager owns the active-session registry. Lifecycle operations serialize
// behind mu; per-leg file rotation fans out in parallel underneath it.
type Manager struct {
	cfg   Config
	repo  Repository
	disk  DiskStatter
	box   *storage.Sandbox
	bus   *events.Bus
	clock func() time.Time
	logger *slog.Logger

	mu              sync.Mutex
	active          *models.RecordingSession
	legs            map[models.CameraID]CameraLeg
	belowWarning    bool
}

// New builds a Manager over box, the on-disk recovery root.
func New(cfg Config, repo Repository, disk DiskStatter, box *storage.Sandbox, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		repo:   repo,
		disk:   disk,
		box:    box,
		bus:    bus,
		clock:  time.Now,
		logger: logger,
		legs:   make(map[models.CameraID]CameraLeg),
	}
}

// Start begins a new session across the given cameras. Every leg is
// attached in parallel; if every leg fails the session is rolled back and
// an error returned. A partial success (some legs recording, some failed)
// is not rolled back — those legs are recorded as failed within the
// session and recording proceeds on the rest.
func (m *Manager) Start(ctx context.Context, cameras map[models.CameraID]CameraLeg, name string) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.Active() {
		return nil, models.NewCoreError(models.ErrConflict, "a recording session is already active")
	}

	status, err := m.diskStatusLocked()
	if err != nil {
		return nil, err
	}
	if status.BelowMin {
		return nil, models.NewCoreError(models.ErrDiskLow, "free disk space below minimum threshold")
	}

	sess := &models.RecordingSession{
		ID:        models.NewULID().String(),
		Name:      name,
		StartedAt: m.clock(),
		Cameras:   make(map[models.CameraID]*models.RecordingLeg),
	}

	type legResult struct {
		id  models.CameraID
		dir string
		err error
	}
	results := make(chan legResult, len(cameras))
	var wg sync.WaitGroup
	for id, leg := range cameras {
		id, leg := id, leg
		wg.Add(1)
		go func() {
			defer wg.Done()
			dir := fmt.Sprintf("recordings/%s/%s", sess.ID, id)
			if err := m.box.MkdirAll(dir); err != nil {
				results <- legResult{id: id, err: err}
				return
			}
			absDir, resolveErr := m.box.ResolvePath(dir)
			if resolveErr != nil {
				results <- legResult{id: id, err: resolveErr}
				return
			}
			results <- legResult{id: id, dir: dir, err: leg.AttachRecording(sess.ID, absDir)}
		}()
	}
	wg.Wait()
	close(results)

	legs := make(map[models.CameraID]CameraLeg)
	succeeded := 0
	for r := range results {
		if r.err != nil {
			sess.Cameras[r.id] = &models.RecordingLeg{CameraID: r.id, State: models.LegFailed, FailureReason: r.err.Error()}
			m.logger.Error("recording: attach failed", "session_id", sess.ID, "camera_id", r.id, "error", r.err)
			continue
		}
		sess.Cameras[r.id] = &models.RecordingLeg{CameraID: r.id, State: models.LegRecording, CurrentFilePath: r.dir}
		legs[r.id] = cameras[r.id]
		succeeded++
		m.publish(models.EventRecordingStarted, map[string]any{"session_id": sess.ID, "camera_id": r.id, "path": r.dir})
	}

	if succeeded == 0 {
		for _, leg := range legs {
			_ = leg.DetachRecording()
		}
		return nil, models.NewCoreError(models.ErrPipelineFatal, "every camera failed to start recording; session rolled back")
	}

	m.active = sess
	m.legs = legs
	if err := m.persistLocked(sess); err != nil {
		m.logger.Error("recording: persisting session failed", "session_id", sess.ID, "error", err)
	}
	m.publish(models.EventRecordingStarted, map[string]any{"session_id": sess.ID, "event": "session_start", "cameras": sess.Cameras})
	return sess, nil
}

// Stop finalizes the active session. Stopping a session that is no longer
// active returns its stored record unchanged; an ID that matches neither the
// active session nor a stored one is an ErrNotFound error.
func (m *Manager) Stop(ctx context.Context, sessionID string) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ID != sessionID {
		if existing, err := m.repo.Get(sessionID); err == nil && existing != nil {
			return existing, nil
		}
		return nil, models.NewCoreError(models.ErrNotFound, fmt.Sprintf("session %q not found", sessionID))
	}
	if !m.active.Active() {
		return m.active, nil
	}

	var wg sync.WaitGroup
	for id, leg := range m.legs {
		id, leg := id, leg
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := leg.DetachRecording(); err != nil {
				m.logger.Warn("recording: detach failed", "session_id", sessionID, "camera_id", id, "error", err)
			}
			if rl, ok := m.active.Cameras[id]; ok {
				rl.State = models.LegFinished
			}
		}()
	}
	wg.Wait()

	now := m.clock()
	m.active.EndedAt = &now
	sess := m.active
	if err := m.persistLocked(sess); err != nil {
		m.logger.Error("recording: persisting session on stop failed", "session_id", sess.ID, "error", err)
	}
	m.publish(models.EventRecordingStopped, map[string]any{"session_id": sess.ID, "event": "session_stop", "cameras": sess.Cameras})

	m.active = nil
	m.legs = make(map[models.CameraID]CameraLeg)
	return sess, nil
}

// RotateIfNeeded checks the active session's legs against the configured
// size/wall-clock thresholds and rotates any that have crossed one,
// emitting FileRotated per rotation.
func (m *Manager) RotateIfNeeded(ctx context.Context) {
	m.mu.Lock()
	if m.active == nil || !m.active.Active() {
		m.mu.Unlock()
		return
	}
	sess := m.active
	legs := make(map[models.CameraID]CameraLeg, len(m.legs))
	for id, leg := range m.legs {
		legs[id] = leg
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, leg := range legs {
		rl, ok := sess.Cameras[id]
		if !ok || rl.State != models.LegRecording {
			continue
		}
		due := false
		if m.cfg.RotateMaxBytes > 0 && rl.BytesWritten >= m.cfg.RotateMaxBytes {
			due = true
		}
		if m.cfg.RotateMaxWall > 0 && rl.DurationSeconds >= m.cfg.RotateMaxWall.Seconds() {
			due = true
		}
		if !due {
			continue
		}
		id, leg, rl := id, leg, rl
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := leg.RotateRecording(); err != nil {
				m.logger.Warn("recording: rotate failed", "session_id", sess.ID, "camera_id", id, "error", err)
				return
			}
			rl.FileSequence++
			m.publish(models.EventFileRotated, map[string]any{"session_id": sess.ID, "camera_id": id, "sequence": rl.FileSequence})
		}()
	}
	wg.Wait()

	m.mu.Lock()
	_ = m.persistLocked(sess)
	m.mu.Unlock()
}

// Active returns the in-flight session, or nil if no session is running.
// The returned pointer is shared with the manager's internal state and
// MUST NOT be mutated by the caller.
func (m *Manager) Active() *models.RecordingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// DiskStatus reports free space against configured thresholds, emitting
// DiskLow once per crossing into the warning band.
func (m *Manager) DiskStatus() (models.DiskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diskStatusLocked()
}

func (m *Manager) diskStatusLocked() (models.DiskStatus, error) {
	freeGB, err := m.disk.FreeGB(m.cfg.RecordingRoot)
	if err != nil {
		return models.DiskStatus{}, fmt.Errorf("reading disk status: %w", err)
	}
	status := models.DiskStatus{
		FreeGB:    freeGB,
		WarningGB: m.cfg.WarningGB,
		MinGB:     m.cfg.MinGB,
	}
	status.BelowWarning = freeGB < m.cfg.WarningGB
	status.BelowMin = freeGB < m.cfg.MinGB

	if status.BelowWarning && !m.belowWarning {
		m.publish(models.EventDiskLow, map[string]any{"free_gb": freeGB, "warning_gb": m.cfg.WarningGB})
	}
	m.belowWarning = status.BelowWarning

	return status, nil
}

// Recover is called once at startup. It looks for a session JSON file with
// no EndedAt, marks every leg that isn't actively writing as failed, and
// finalizes the session so the process never starts up believing a
// recording is still in progress.
func (m *Manager) Recover(sessionID string) error {
	path := fmt.Sprintf("sessions/%s.json", sessionID)
	data, err := m.box.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading session recovery file: %w", err)
	}

	var sess models.RecordingSession
	if err := unmarshalSession(data, &sess); err != nil {
		return fmt.Errorf("parsing session recovery file: %w", err)
	}
	if sess.EndedAt != nil {
		return nil
	}

	for _, leg := range sess.Cameras {
		if leg.State == models.LegRecording || leg.State == models.LegArmed || leg.State == models.LegRotating {
			leg.State = models.LegFailed
			leg.FailureReason = "process restarted mid-recording"
		}
	}
	now := m.clock()
	sess.EndedAt = &now

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked(&sess)
}

func (m *Manager) persistLocked(sess *models.RecordingSession) error {
	data, err := marshalSession(sess)
	if err != nil {
		return err
	}
	if err := m.box.AtomicWrite(fmt.Sprintf("sessions/%s.json", sess.ID), data); err != nil {
		return fmt.Errorf("writing session recovery file: %w", err)
	}
	return m.repo.Save(sess)
}

func (m *Manager) publish(kind models.EventKind, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(models.Event{Kind: kind, Timestamp: m.clock(), Component: "recording", Payload: payload})
}

func marshalSession(sess *models.RecordingSession) ([]byte, error) {
	return json.MarshalIndent(sess, "", "  ")
}

func unmarshalSession(data []byte, sess *models.RecordingSession) error {
	return json.Unmarshal(data, sess)
}
