package handlers

import (
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/models"
)

// mapError translates a component error into a huma status error. When err
// is a *models.CoreError its Kind selects the HTTP status and is folded
// into the message so the closed error-kind set from §7 survives the trip
// through huma's error envelope.
func mapError(err error) error {
	var coreErr *models.CoreError
	if !errors.As(err, &coreErr) {
		return huma.Error500InternalServerError(err.Error())
	}

	msg := fmt.Sprintf("[%s] %s", coreErr.Kind, coreErr.Message)
	switch coreErr.Kind {
	case models.ErrNotFound:
		return huma.Error404NotFound(msg)
	case models.ErrConflict, models.ErrBusyRecording:
		return huma.Error409Conflict(msg)
	case models.ErrConfigInvalid:
		return huma.Error400BadRequest(msg)
	case models.ErrTimeout, models.ErrPrerollTimeout:
		return huma.Error504GatewayTimeout(msg)
	case models.ErrDeviceMissing, models.ErrNoSignal, models.ErrDiskLow,
		models.ErrVpuExhausted, models.ErrPipelineBuildFailed, models.ErrPipelineFatal:
		return huma.Error422UnprocessableEntity(msg)
	default:
		return huma.Error500InternalServerError(msg)
	}
}
