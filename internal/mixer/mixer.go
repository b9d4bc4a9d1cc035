// Package mixer implements the program mixer (C8): the single compositor
// pipeline that composes every camera/file/graphic/guest input referenced
// by the active scenes onto one canvas and publishes the result as the
// program feed. The compositor pipeline is built once per PLAYING lifetime
// and never rebuilt on a scene switch — switches rewrite the running
// pipeline's slot parameters in place, mirroring the same mutex-actor shape
// the relay manager uses for its own sessions.
package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/ffmpeg"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/pipeline"
	"github.com/embedops/mediacore/internal/vpu"
)

// watchdogInterval is how often the mixer samples the compositor process's
// liveness while PLAYING.
const watchdogInterval = 2 * time.Second

// watchdogNoFrameTimeout is how long the compositor process may appear
// stalled before the mixer attempts one automatic restart.
const watchdogNoFrameTimeout = 10 * time.Second

// SceneResolver looks up scenes by ID; satisfied by *scene.Store.
type SceneResolver interface {
	Get(id string) (*models.Scene, error)
}

// CameraInput resolves the RTSP stream-branch mount a scene's camera slot
// should read, and whether that camera is currently able to supply frames.
type CameraInput interface {
	StreamMount(id models.CameraID) (pipeline.MixerSlotSpec, bool)
}

// Config bundles everything the Mixer needs at construction time.
type Config struct {
	FFmpegPath      string
	CanvasWidth     int
	CanvasHeight    int
	FrameRate       int
	BackgroundColor string
	ProgramURL      string
	MountPath       string
	MaxFanIn        int
}

// Mixer is the C8 actor. One process-wide instance.
type Mixer struct {
	cfg        Config
	scenes     SceneResolver
	cameras    CameraInput
	budget     *vpu.Budget
	bus        *events.Bus
	controller CompositorController
	logger     *slog.Logger

	mu sync.Mutex

	state          models.PipelineState
	programSceneID string
	previewSceneID string
	transition     models.TransitionKind
	pendingTake    *takeRequest

	cmd          *ffmpeg.Command
	decodeGuards map[models.CameraID]*vpu.Guard

	watchdogCancel context.CancelFunc
	lastHealthyAt  time.Time
}

type takeRequest struct {
	transition models.TransitionKind
}

// New builds a Mixer in the NULL state.
func New(cfg Config, scenes SceneResolver, cameras CameraInput, budget *vpu.Budget, bus *events.Bus, controller CompositorController, logger *slog.Logger) *Mixer {
	if controller == nil {
		controller = NewLoggingController(logger)
	}
	return &Mixer{
		cfg:          cfg,
		scenes:       scenes,
		cameras:      cameras,
		budget:       budget,
		bus:          bus,
		controller:   controller,
		logger:       logger,
		state:        models.PipelineNull,
		decodeGuards: make(map[models.CameraID]*vpu.Guard),
	}
}

// Status returns the externally observable mixer state.
func (m *Mixer) Status() models.MixerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.MixerState{
		PipelineState:      m.state,
		ProgramSceneID:     m.programSceneID,
		PreviewSceneID:     m.previewSceneID,
		Transition:         m.transition,
		TransitionInFlight: m.pendingTake != nil,
	}
}

// Start brings the mixer from NULL to PLAYING with programSceneID on
// program. Building the compositor pipeline acquires one VPU decode slot
// per camera input referenced by the scene.
func (m *Mixer) Start(ctx context.Context, programSceneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.PipelineNull && m.state != models.PipelineError {
		return models.NewCoreError(models.ErrConflict, "mixer is already running")
	}

	sc, err := m.scenes.Get(programSceneID)
	if err != nil {
		return err
	}

	m.state = models.PipelineBuilding
	spec, guards, err := m.buildSpecLocked(sc)
	if err != nil {
		m.releaseGuardsLocked()
		m.state = models.PipelineError
		return models.NewCoreError(models.ErrPipelineBuildFailed, err.Error())
	}

	cmd := pipeline.BuildMixerCommand(m.cfg.FFmpegPath, spec)
	if err := cmd.Start(context.Background()); err != nil {
		m.releaseGuardsLocked()
		m.state = models.PipelineError
		return models.NewCoreError(models.ErrPipelineBuildFailed, fmt.Sprintf("starting compositor: %v", err))
	}

	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
	}
	if !cmd.IsRunning() {
		m.releaseGuardsLocked()
		m.state = models.PipelineError
		return models.NewCoreError(models.ErrPipelineBuildFailed, "compositor exited immediately after start")
	}

	m.cmd = cmd
	m.decodeGuards = guards
	m.programSceneID = programSceneID
	m.previewSceneID = programSceneID
	m.state = models.PipelinePlaying
	m.lastHealthyAt = time.Now()
	m.startWatchdogLocked()

	m.publish(models.EventMixerTransitionDone, map[string]any{"scene_id": programSceneID})
	m.publishTallyLocked()
	return nil
}

// SetPreviewScene loads a scene onto the preview bus without touching
// program. It rewrites no running slots; preview is purely bookkeeping
// until Take promotes it.
func (m *Mixer) SetPreviewScene(sceneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.PipelinePlaying {
		return models.NewCoreError(models.ErrConflict, "mixer is not playing")
	}
	if _, err := m.scenes.Get(sceneID); err != nil {
		return err
	}
	m.previewSceneID = sceneID
	m.publishTallyLocked()
	return nil
}

// Take promotes the preview scene to program via the given transition. A
// transition already in flight queues at most one pending take (FIFO depth
// 1); a second concurrent Take is rejected rather than queued further.
func (m *Mixer) Take(ctx context.Context, transition models.TransitionKind) error {
	m.mu.Lock()
	if m.state != models.PipelinePlaying && m.state != models.PipelineTransitioning {
		m.mu.Unlock()
		return models.NewCoreError(models.ErrConflict, "mixer is not playing")
	}
	if m.pendingTake != nil {
		m.mu.Unlock()
		return models.NewCoreError(models.ErrConflict, "a transition is already queued")
	}
	if m.state == models.PipelineTransitioning {
		m.pendingTake = &takeRequest{transition: transition}
		m.mu.Unlock()
		return nil
	}
	m.state = models.PipelineTransitioning
	m.transition = transition
	targetScene := m.previewSceneID
	m.mu.Unlock()

	m.runTransition(ctx, targetScene, transition)
	return nil
}

// runTransition drives the running compositor's slot parameters from the
// current program scene to targetScene, either atomically (cut) or via a
// crossfade sampled at a fixed step interval (mix/auto). It never rebuilds
// the pipeline; it only issues CompositorController.ApplySlotUpdate calls.
func (m *Mixer) runTransition(ctx context.Context, targetScene string, kind models.TransitionKind) {
	m.mu.Lock()
	sc, err := m.scenes.Get(targetScene)
	if err != nil {
		m.logger.Error("mixer transition: resolving target scene failed", "scene_id", targetScene, "error", err)
		m.state = models.PipelinePlaying
		m.mu.Unlock()
		return
	}
	spec, guards, err := m.buildSpecLocked(sc)
	if err != nil {
		m.logger.Error("mixer transition: building target slot spec failed", "scene_id", targetScene, "error", err)
		m.state = models.PipelinePlaying
		m.mu.Unlock()
		return
	}
	oldGuards := m.decodeGuards
	m.decodeGuards = guards
	m.mu.Unlock()

	durationMS := kind.Duration()
	if durationMS == 0 {
		m.applySlotsOnce(ctx, spec.Slots, 1.0)
	} else {
		const steps = 10
		step := time.Duration(durationMS/steps) * time.Millisecond
	crossfade:
		for i := 1; i <= steps; i++ {
			progress := float64(i) / float64(steps)
			m.applySlotsOnce(ctx, spec.Slots, progress)
			select {
			case <-time.After(step):
			case <-ctx.Done():
				break crossfade
			}
		}
	}

	for id, g := range oldGuards {
		if _, stillUsed := guards[id]; !stillUsed {
			g.Release()
		}
	}

	m.mu.Lock()
	m.programSceneID = targetScene
	m.state = models.PipelinePlaying
	pending := m.pendingTake
	m.pendingTake = nil
	m.mu.Unlock()

	m.publish(models.EventMixerTransitionDone, map[string]any{"scene_id": targetScene, "transition": kind})
	m.mu.Lock()
	m.publishTallyLocked()
	m.mu.Unlock()

	if pending != nil {
		m.mu.Lock()
		m.state = models.PipelineTransitioning
		m.transition = pending.transition
		next := m.previewSceneID
		m.mu.Unlock()
		m.runTransition(ctx, next, pending.transition)
	}
}

// applySlotsOnce pushes every slot at the given crossfade progress (1.0 =
// fully cut over). A real crossfade interpolates opacity between the
// outgoing and incoming scene's slots; this applies the incoming scene's
// slots directly scaled by progress, which is exact for progress==1 (cut)
// and an approximation of a true dissolve for intermediate steps.
func (m *Mixer) applySlotsOnce(ctx context.Context, slots []pipeline.MixerSlotSpec, progress float64) {
	for _, slot := range slots {
		s := slot
		s.Opacity = slot.Opacity * progress
		if err := m.controller.ApplySlotUpdate(ctx, s); err != nil {
			m.logger.Warn("mixer: applying slot update failed", "sink", s.SinkIndex, "error", err)
		}
	}
}

// Stop tears the compositor down and returns the mixer to NULL.
func (m *Mixer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopWatchdogLocked()
	if m.cmd != nil {
		_ = m.cmd.Kill()
		m.cmd = nil
	}
	m.releaseGuardsLocked()
	m.state = models.PipelineNull
	m.programSceneID = ""
	m.previewSceneID = ""
	return nil
}

// blackPadSize is the geometry given to unused fan-in slots. It is kept
// small since the pad is never visible — only the sink pad count, not the
// pixel cost, needs to stay fixed across scene switches.
const blackPadSize = 16

// buildSpecLocked resolves a scene's slots against currently known cameras
// and acquires one VPU decode guard per distinct camera input, returning
// the guard set the caller should install (releasing any guards belonging
// to cameras no longer referenced is the caller's responsibility). The
// returned spec always carries exactly MaxFanIn slots: scenes with fewer
// slots than the budget are padded with invisible BlackSource entries so
// the compositor's input/pad count — and therefore the ffmpeg command line
// built once in Start — never changes across a scene switch, per §4.3/§4.8.
func (m *Mixer) buildSpecLocked(sc *models.Scene) (pipeline.MixerSpec, map[models.CameraID]*vpu.Guard, error) {
	if len(sc.Slots) > m.cfg.MaxFanIn {
		return pipeline.MixerSpec{}, nil, fmt.Errorf(
			"scene %q needs %d slots, exceeds mixer fan-in budget of %d", sc.ID, len(sc.Slots), m.cfg.MaxFanIn)
	}

	spec := pipeline.MixerSpec{
		CanvasWidth:     m.cfg.CanvasWidth,
		CanvasHeight:    m.cfg.CanvasHeight,
		FrameRate:       m.cfg.FrameRate,
		BackgroundColor: m.cfg.BackgroundColor,
		ProgramEncoder: pipeline.EncoderSpec{
			Placement: models.EncoderSoftware,
			Codec:     "h264",
			BitrateKbps: 6000,
		},
		ProgramPublish: pipeline.RTSPPublishSpec{ServerURL: m.cfg.ProgramURL, MountPath: m.cfg.MountPath},
	}

	guards := make(map[models.CameraID]*vpu.Guard)
	for i, slot := range sc.Slots {
		ms := pipeline.MixerSlotSpec{
			SinkIndex: i,
			Input:     slot.Input,
			Width:     slot.Width,
			Height:    slot.Height,
			X:         slot.X,
			Y:         slot.Y,
			ZOrder:    slot.ZOrder,
			Opacity:   slot.Opacity,
			Visible:   slot.Visible,
			Queue:     pipeline.DefaultQueuePolicy,
		}
		if slot.Input.Kind == models.InputCamera {
			if m.cameras != nil {
				if mount, ok := m.cameras.StreamMount(slot.Input.CameraID); ok {
					ms.Input = mount.Input
				}
			}
			if _, already := guards[slot.Input.CameraID]; !already {
				g, ok := m.budget.TryAcquire(vpu.Decode, 1)
				if !ok {
					for _, existing := range guards {
						existing.Release()
					}
					return pipeline.MixerSpec{}, nil, fmt.Errorf("vpu decode budget exhausted for camera %q", slot.Input.CameraID)
				}
				guards[slot.Input.CameraID] = g
			}
		}
		spec.Slots = append(spec.Slots, ms)
	}

	for i := len(spec.Slots); i < m.cfg.MaxFanIn; i++ {
		spec.Slots = append(spec.Slots, pipeline.MixerSlotSpec{
			SinkIndex: i,
			Input:     pipeline.BlackSource,
			Width:     blackPadSize,
			Height:    blackPadSize,
			Visible:   false,
			Queue:     pipeline.DefaultQueuePolicy,
		})
	}

	return spec, guards, nil
}

func (m *Mixer) releaseGuardsLocked() {
	for _, g := range m.decodeGuards {
		g.Release()
	}
	m.decodeGuards = make(map[models.CameraID]*vpu.Guard)
}

// startWatchdogLocked starts a background loop that restarts the
// compositor once if it appears to have exited while the mixer believes it
// should be PLAYING. This approximates the "no keyframe for 10s" watchdog
// using process liveness, since no keyframe-arrival telemetry is wired from
// the compositor's stderr in this implementation.
func (m *Mixer) startWatchdogLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	cmd := m.cmd

	go func() {
		ticker := time.NewTicker(watchdogInterval)
		defer ticker.Stop()
		restarted := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cmd.IsRunning() {
					m.mu.Lock()
					m.lastHealthyAt = time.Now()
					m.mu.Unlock()
					continue
				}
				m.mu.Lock()
				stalledFor := time.Since(m.lastHealthyAt)
				m.mu.Unlock()
				if stalledFor < watchdogNoFrameTimeout {
					continue
				}
				if restarted {
					m.mu.Lock()
					m.state = models.PipelineError
					m.mu.Unlock()
					m.publish(models.EventEncoderDegraded, map[string]any{"reason": "compositor watchdog exhausted retry"})
					return
				}
				restarted = true
				m.logger.Warn("mixer watchdog: compositor process died, restarting once")
				m.restartCompositor(ctx)
			}
		}
	}()
}

func (m *Mixer) stopWatchdogLocked() {
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		m.watchdogCancel = nil
	}
}

func (m *Mixer) restartCompositor(ctx context.Context) {
	m.mu.Lock()
	sceneID := m.programSceneID
	sc, err := m.scenes.Get(sceneID)
	if err != nil {
		m.state = models.PipelineError
		m.mu.Unlock()
		return
	}
	spec, guards, err := m.buildSpecLocked(sc)
	if err != nil {
		m.state = models.PipelineError
		m.mu.Unlock()
		return
	}
	cmd := pipeline.BuildMixerCommand(m.cfg.FFmpegPath, spec)
	if err := cmd.Start(context.Background()); err != nil {
		m.state = models.PipelineError
		m.mu.Unlock()
		return
	}
	oldGuards := m.decodeGuards
	m.cmd = cmd
	m.decodeGuards = guards
	m.lastHealthyAt = time.Now()
	m.mu.Unlock()

	for _, g := range oldGuards {
		g.Release()
	}
}

func (m *Mixer) publish(kind models.EventKind, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(models.Event{Kind: kind, Timestamp: time.Now(), Component: "mixer", Payload: payload})
}

// publishTallyLocked emits the current program/preview camera sets. Called
// with mu held.
func (m *Mixer) publishTallyLocked() {
	if m.bus == nil {
		return
	}
	tally := m.tallyLocked()
	m.bus.Publish(models.Event{Kind: models.EventTallyChanged, Timestamp: time.Now(), Component: "mixer", Payload: tally})
}

func (m *Mixer) tallyLocked() models.Tally {
	var t models.Tally
	if sc, err := m.scenes.Get(m.programSceneID); err == nil {
		t.Program = camerasOf(sc)
	}
	if m.previewSceneID != m.programSceneID {
		if sc, err := m.scenes.Get(m.previewSceneID); err == nil {
			t.Preview = camerasOf(sc)
		}
	}
	return t
}

func camerasOf(sc *models.Scene) []models.CameraID {
	var out []models.CameraID
	for _, slot := range sc.Slots {
		if slot.Input.Kind == models.InputCamera {
			out = append(out, slot.Input.CameraID)
		}
	}
	return out
}
