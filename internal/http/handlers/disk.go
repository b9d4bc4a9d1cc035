package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/pkg/format"
)

// DiskHandler reports recording-root free space against configured
// thresholds.
type DiskHandler struct {
	app *App
}

// NewDiskHandler creates a new disk handler.
func NewDiskHandler(app *App) *DiskHandler {
	return &DiskHandler{app: app}
}

// Register registers the disk route with the API.
func (h *DiskHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getDisk",
		Method:      "GET",
		Path:        "/api/v1/disk",
		Summary:     "Free/warning/min thresholds for the recording root",
		Tags:        []string{"Recording"},
	}, h.GetDisk)
}

// DiskInput is the input for the disk endpoint.
type DiskInput struct{}

// DiskResponse is models.DiskStatus plus a human-readable free-space string
// for display clients that don't want to reformat the raw gigabyte float.
type DiskResponse struct {
	models.DiskStatus
	FreeHuman string `json:"free_human"`
}

// DiskOutput is the output for the disk endpoint.
type DiskOutput struct {
	Body DiskResponse
}

// GetDisk returns the current disk status for the recording root.
func (h *DiskHandler) GetDisk(ctx context.Context, input *DiskInput) (*DiskOutput, error) {
	if h.app.Recording == nil {
		return nil, mapError(models.NewCoreError(models.ErrInternal, "recording manager not configured"))
	}
	status, err := h.app.Recording.DiskStatus()
	if err != nil {
		return nil, mapError(err)
	}
	return &DiskOutput{Body: DiskResponse{
		DiskStatus: status,
		FreeHuman:  format.Bytes(int64(status.FreeGB * (1 << 30))),
	}}, nil
}
