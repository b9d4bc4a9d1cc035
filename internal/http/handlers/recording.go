package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/recording"
)

// RecordingHandler serves recording-session lifecycle endpoints.
type RecordingHandler struct {
	app *App
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(app *App) *RecordingHandler {
	return &RecordingHandler{app: app}
}

// Register registers the recording routes with the API.
func (h *RecordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startRecording",
		Method:      "POST",
		Path:        "/api/v1/recording/start",
		Summary:     "Start a recording session across cameras",
		Tags:        []string{"Recording"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopRecording",
		Method:      "POST",
		Path:        "/api/v1/recording/stop",
		Summary:     "Stop the active recording session",
		Tags:        []string{"Recording"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "getRecordingStatus",
		Method:      "GET",
		Path:        "/api/v1/recording/status",
		Summary:     "Active session and per-leg stats",
		Tags:        []string{"Recording"},
	}, h.Status)
}

// StartRecordingInput is the input for starting a recording session.
type StartRecordingInput struct {
	Body struct {
		CameraIDs []string `json:"camera_ids,omitempty"`
		Name      string   `json:"name,omitempty"`
	}
}

// SessionOutput wraps a recording session response.
type SessionOutput struct {
	Body models.RecordingSession
}

// Start begins a recording session across the requested cameras, or every
// known camera when camera_ids is omitted.
func (h *RecordingHandler) Start(ctx context.Context, input *StartRecordingInput) (*SessionOutput, error) {
	legs := make(map[models.CameraID]recording.CameraLeg)
	if len(input.Body.CameraIDs) == 0 {
		for id, w := range h.app.Cameras {
			legs[id] = w
		}
	} else {
		for _, raw := range input.Body.CameraIDs {
			id := models.CameraID(raw)
			w, ok := h.app.Cameras[id]
			if !ok {
				return nil, mapError(models.NewCoreError(models.ErrNotFound, "camera "+raw+" not found"))
			}
			legs[id] = w
		}
	}

	sess, err := h.app.Recording.Start(ctx, legs, input.Body.Name)
	if err != nil {
		return nil, mapError(err)
	}
	return &SessionOutput{Body: *sess}, nil
}

// StopRecordingInput is the input for stopping the active session.
type StopRecordingInput struct {
	Body struct {
		SessionID string `json:"session_id,omitempty"`
	}
}

// Stop ends the active recording session.
func (h *RecordingHandler) Stop(ctx context.Context, input *StopRecordingInput) (*SessionOutput, error) {
	sessionID := input.Body.SessionID
	if sessionID == "" {
		if active := h.app.Recording.Active(); active != nil {
			sessionID = active.ID
		}
	}
	sess, err := h.app.Recording.Stop(ctx, sessionID)
	if err != nil {
		return nil, mapError(err)
	}
	return &SessionOutput{Body: *sess}, nil
}

// RecordingStatusInput is the input for the recording status endpoint.
type RecordingStatusInput struct{}

// Status reports the active recording session, or an empty session when
// none is in flight.
func (h *RecordingHandler) Status(ctx context.Context, input *RecordingStatusInput) (*SessionOutput, error) {
	sess := h.app.Recording.Active()
	if sess == nil {
		return &SessionOutput{Body: models.RecordingSession{}}, nil
	}
	return &SessionOutput{Body: *sess}, nil
}
