// Package capture implements the device probe (C2): read-only, side-effect
// free queries against HDMI capture devices. It never opens the device for
// streaming or changes its format — only the ingest worker's pipeline does
// that.
package capture

import (
	"context"
	"time"

	"github.com/embedops/mediacore/internal/models"
)

// DefaultProbeTimeout bounds a single probe call; the spec requires
// latency <=100ms, typically <=50ms.
const DefaultProbeTimeout = 100 * time.Millisecond

// Signal is the (width, height, fps) a device currently reports. A nil
// *Signal from CurrentSignal means no signal (including the hardware
// reporting 0x0).
type Signal struct {
	Width  int
	Height int
	FPS    float64
}

// Prober is the read-only device-query surface consumed by the supervisor
// and ingest workers.
type Prober interface {
	// IsPresent reports whether the OS device node exists and responds to a
	// capability query.
	IsPresent(ctx context.Context, devicePath string) bool
	// CurrentSignal returns the device's current mode, or nil if no signal.
	CurrentSignal(ctx context.Context, devicePath string, class models.CapabilityClass) (*Signal, error)
}

// boundedProbe runs fn with DefaultProbeTimeout unless ctx already carries a
// tighter deadline, and reports timeout as a nil-signal/false result rather
// than an error: a probe that can't complete in time is, for the caller's
// purposes, indistinguishable from "no signal yet".
func boundedProbe(ctx context.Context, fn func(context.Context) (*Signal, error)) (*Signal, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
		defer cancel()
	}

	type result struct {
		sig *Signal
		err error
	}
	done := make(chan result, 1)
	go func() {
		sig, err := fn(ctx)
		done <- result{sig, err}
	}()

	select {
	case r := <-done:
		return r.sig, r.err
	case <-ctx.Done():
		return nil, nil
	}
}
