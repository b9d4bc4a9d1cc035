package mixer

import (
	"context"
	"log/slog"

	"github.com/embedops/mediacore/internal/pipeline"
)

// CompositorController is the live control-plane boundary the mixer pushes
// slot updates through once the compositor pipeline is running. The
// reference deployment drives this via ffmpeg's sendcmd/zmq control filter
// inserted after the overlay chain, letting scene switches reach the
// running process without ever rebuilding it — the "must not rebuild the
// pipeline" invariant in §4.3/§4.8. Abstracted behind an interface so the
// state machine in mixer.go is testable without a live ffmpeg process.
type CompositorController interface {
	// ApplySlotUpdate pushes one slot's position/size/z/opacity to the
	// running compositor.
	ApplySlotUpdate(ctx context.Context, slot pipeline.MixerSlotSpec) error
	// Healthy reports whether the control channel still believes the
	// compositor is producing frames.
	Healthy() bool
}

// LoggingController is a CompositorController that records every slot
// update without driving a live process; used when the mixer runs with no
// zmq-capable ffmpeg build available, degrading scene switches to
// log-only/no-op rather than failing outright.
type LoggingController struct {
	logger *slog.Logger
}

// NewLoggingController returns a CompositorController that logs updates.
func NewLoggingController(logger *slog.Logger) *LoggingController {
	return &LoggingController{logger: logger}
}

func (c *LoggingController) ApplySlotUpdate(_ context.Context, slot pipeline.MixerSlotSpec) error {
	c.logger.Debug("compositor slot update",
		"sink", slot.SinkIndex, "x", slot.X, "y", slot.Y, "w", slot.Width, "h", slot.Height,
		"z", slot.ZOrder, "opacity", slot.Opacity, "visible", slot.Visible)
	return nil
}

func (c *LoggingController) Healthy() bool { return true }
