package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/vpu"
)

// CapabilitiesHandler reports static/negotiated process capabilities.
type CapabilitiesHandler struct {
	app *App
}

// NewCapabilitiesHandler creates a new capabilities handler.
func NewCapabilitiesHandler(app *App) *CapabilitiesHandler {
	return &CapabilitiesHandler{app: app}
}

// Register registers the capabilities route with the API.
func (h *CapabilitiesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getCapabilities",
		Method:      "GET",
		Path:        "/api/v1/capabilities",
		Summary:     "Cameras present, VPU budget, API version",
		Tags:        []string{"System"},
	}, h.GetCapabilities)
}

// CapabilitiesInput is the input for the capabilities endpoint.
type CapabilitiesInput struct{}

// CapabilitiesResponse is the capabilities response body.
type CapabilitiesResponse struct {
	APIVersion          string       `json:"api_version"`
	CameraIDs           []string     `json:"camera_ids"`
	VpuBudget           vpu.Snapshot `json:"vpu_budget"`
	RelayDeliveryReady  bool         `json:"relay_delivery_ready"`
	RelayDeliveryReason string       `json:"relay_delivery_reason,omitempty"`
}

// CapabilitiesOutput is the output for the capabilities endpoint.
type CapabilitiesOutput struct {
	Body CapabilitiesResponse
}

// GetCapabilities reports cameras present and the current VPU budget.
func (h *CapabilitiesHandler) GetCapabilities(ctx context.Context, input *CapabilitiesInput) (*CapabilitiesOutput, error) {
	ids := make([]string, 0, len(h.app.Cameras))
	for _, id := range h.app.sortedCameraIDs() {
		ids = append(ids, string(id))
	}

	var snapshot vpu.Snapshot
	if h.app.Budget != nil {
		snapshot = h.app.Budget.Stats()
	}

	ready, reason := h.relayStatus()

	return &CapabilitiesOutput{
		Body: CapabilitiesResponse{
			APIVersion:          "v1",
			CameraIDs:           ids,
			VpuBudget:           snapshot,
			RelayDeliveryReady:  ready,
			RelayDeliveryReason: reason,
		},
	}, nil
}

// relayStatus reports whether a usable relay credential is currently
// cached. Remote WebRTC delivery itself is out of scope, but the capability
// the control API advertises still reflects the credential cache's health.
func (h *CapabilitiesHandler) relayStatus() (ready bool, reason string) {
	if h.app.RelayCred == nil {
		return false, "relay credential fetch not configured"
	}
	if _, ok := h.app.RelayCred.Get(); !ok {
		if degraded, why := h.app.RelayCred.Degraded(); degraded {
			return false, why
		}
		return false, "no relay credential cached yet"
	}
	return true, ""
}
