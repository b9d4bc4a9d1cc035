package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/models"
)

// CameraHandler serves per-camera snapshot and enable/disable endpoints.
type CameraHandler struct {
	app *App
}

// NewCameraHandler creates a new camera handler.
func NewCameraHandler(app *App) *CameraHandler {
	return &CameraHandler{app: app}
}

// Register registers the camera routes with the API.
func (h *CameraHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listCameras",
		Method:      "GET",
		Path:        "/api/v1/cameras",
		Summary:     "Per-camera state, signal, resolution, encoder placement",
		Tags:        []string{"Cameras"},
	}, h.ListCameras)

	huma.Register(api, huma.Operation{
		OperationID: "enableCamera",
		Method:      "POST",
		Path:        "/api/v1/cameras/{id}/enable",
		Summary:     "Enable a camera's ingest worker",
		Tags:        []string{"Cameras"},
	}, h.EnableCamera)

	huma.Register(api, huma.Operation{
		OperationID: "disableCamera",
		Method:      "POST",
		Path:        "/api/v1/cameras/{id}/disable",
		Summary:     "Disable a camera's ingest worker",
		Tags:        []string{"Cameras"},
	}, h.DisableCamera)
}

// ListCamerasInput is the input for listing cameras.
type ListCamerasInput struct{}

// ListCamerasOutput is the output for listing cameras.
type ListCamerasOutput struct {
	Body struct {
		Cameras []models.IngestSnapshot `json:"cameras"`
	}
}

// ListCameras returns a snapshot of every known camera's ingest worker.
func (h *CameraHandler) ListCameras(ctx context.Context, input *ListCamerasInput) (*ListCamerasOutput, error) {
	out := &ListCamerasOutput{}
	out.Body.Cameras = make([]models.IngestSnapshot, 0, len(h.app.Cameras))
	for _, id := range h.app.sortedCameraIDs() {
		out.Body.Cameras = append(out.Body.Cameras, h.app.Cameras[id].Describe())
	}
	return out, nil
}

// CameraIDInput identifies one camera by path parameter.
type CameraIDInput struct {
	ID string `path:"id"`
}

// CameraActionOutput is the output for enable/disable.
type CameraActionOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func (h *CameraHandler) lookup(id string) (interface {
	Enable()
	Disable()
}, error) {
	worker, ok := h.app.Cameras[models.CameraID(id)]
	if !ok {
		return nil, mapError(models.NewCoreError(models.ErrNotFound, "camera "+id+" not found"))
	}
	return worker, nil
}

// EnableCamera enables the named camera's ingest worker.
func (h *CameraHandler) EnableCamera(ctx context.Context, input *CameraIDInput) (*CameraActionOutput, error) {
	worker, err := h.lookup(input.ID)
	if err != nil {
		return nil, err
	}
	worker.Enable()
	out := &CameraActionOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// DisableCamera disables the named camera's ingest worker.
func (h *CameraHandler) DisableCamera(ctx context.Context, input *CameraIDInput) (*CameraActionOutput, error) {
	worker, err := h.lookup(input.ID)
	if err != nil {
		return nil, err
	}
	worker.Disable()
	out := &CameraActionOutput{}
	out.Body.Status = "ok"
	return out, nil
}
