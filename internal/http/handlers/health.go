package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/pkg/format"
)

// HealthHandler serves the liveness/readiness endpoint.
type HealthHandler struct {
	app *App
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(app *App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/api/v1/health",
		Summary:     "Liveness and media-framework availability",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// HealthInput is the input for the health endpoint.
type HealthInput struct{}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	StartedAt     string  `json:"started_at"`
	MixerState    string  `json:"mixer_state"`
	CamerasKnown  int     `json:"cameras_known"`
}

// HealthOutput is the output for the health endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth reports process liveness and a coarse snapshot of mixer state.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	status := "healthy"
	mixerState := "unavailable"
	if h.app.Mixer != nil {
		mixerState = string(h.app.Mixer.Status().PipelineState)
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Version:       h.app.Version,
			UptimeSeconds: time.Since(h.app.StartTime).Seconds(),
			StartedAt:     format.RelativeTime(h.app.StartTime),
			MixerState:    mixerState,
			CamerasKnown:  len(h.app.Cameras),
		},
	}, nil
}
