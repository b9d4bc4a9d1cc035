package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/models"
)

// MixerHandler serves the mixer lifecycle and transition endpoints.
type MixerHandler struct {
	app *App
}

// NewMixerHandler creates a new mixer handler.
func NewMixerHandler(app *App) *MixerHandler {
	return &MixerHandler{app: app}
}

// Register registers the mixer routes with the API.
func (h *MixerHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getMixerStatus",
		Method:      "GET",
		Path:        "/api/v1/mixer/status",
		Summary:     "Mixer lifecycle state and tally",
		Tags:        []string{"Mixer"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "startMixer",
		Method:      "POST",
		Path:        "/api/v1/mixer/start",
		Summary:     "Start the mixer on a program scene",
		Tags:        []string{"Mixer"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopMixer",
		Method:      "POST",
		Path:        "/api/v1/mixer/stop",
		Summary:     "Stop the mixer and release its compositor",
		Tags:        []string{"Mixer"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "setMixerPreview",
		Method:      "POST",
		Path:        "/api/v1/mixer/preview",
		Summary:     "Load a scene onto preview",
		Tags:        []string{"Mixer"},
	}, h.SetPreview)

	huma.Register(api, huma.Operation{
		OperationID: "takeMixer",
		Method:      "POST",
		Path:        "/api/v1/mixer/take",
		Summary:     "Promote preview to program via a transition",
		Tags:        []string{"Mixer"},
	}, h.Take)
}

// MixerStatusInput is the input for the mixer status endpoint.
type MixerStatusInput struct{}

// MixerStatusOutput is the output for the mixer status endpoint.
type MixerStatusOutput struct {
	Body models.MixerState
}

// GetStatus returns the mixer's current lifecycle state.
func (h *MixerHandler) GetStatus(ctx context.Context, input *MixerStatusInput) (*MixerStatusOutput, error) {
	if h.app.Mixer == nil {
		return nil, mapError(models.NewCoreError(models.ErrInternal, "mixer not configured"))
	}
	return &MixerStatusOutput{Body: h.app.Mixer.Status()}, nil
}

// StartMixerInput is the input for starting the mixer.
type StartMixerInput struct {
	Body struct {
		SceneID string `json:"scene_id"`
	}
}

// StatusOutput is a bare {status:"ok"} style response.
type StatusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Start brings the mixer up on the given program scene.
func (h *MixerHandler) Start(ctx context.Context, input *StartMixerInput) (*StatusOutput, error) {
	if err := h.app.Mixer.Start(ctx, input.Body.SceneID); err != nil {
		return nil, mapError(err)
	}
	out := &StatusOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// StopMixerInput is the input for stopping the mixer.
type StopMixerInput struct{}

// Stop tears the mixer's compositor down and returns it to NULL.
func (h *MixerHandler) Stop(ctx context.Context, input *StopMixerInput) (*StatusOutput, error) {
	if err := h.app.Mixer.Stop(); err != nil {
		return nil, mapError(err)
	}
	out := &StatusOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// SetPreviewInput is the input for loading a scene onto preview.
type SetPreviewInput struct {
	Body struct {
		SceneID string `json:"scene_id"`
	}
}

// SetPreview loads a scene onto the preview bus.
func (h *MixerHandler) SetPreview(ctx context.Context, input *SetPreviewInput) (*StatusOutput, error) {
	if err := h.app.Mixer.SetPreviewScene(input.Body.SceneID); err != nil {
		return nil, mapError(err)
	}
	out := &StatusOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// TakeInput is the input for a take operation.
type TakeInput struct {
	Body struct {
		Transition models.TransitionKind `json:"transition"`
	}
}

// Take promotes the preview scene to program via the requested transition.
func (h *MixerHandler) Take(ctx context.Context, input *TakeInput) (*StatusOutput, error) {
	transition := input.Body.Transition
	if transition == "" {
		transition = models.TransitionCut
	}
	if err := h.app.Mixer.Take(ctx, transition); err != nil {
		return nil, mapError(err)
	}
	out := &StatusOutput{}
	out.Body.Status = "ok"
	return out, nil
}
