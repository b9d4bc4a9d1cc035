// Package testutil provides deterministic fakes for exercising components
// that would otherwise depend on real hardware or the network.
package testutil

import (
	"context"
	"sync"

	"github.com/embedops/mediacore/internal/capture"
	"github.com/embedops/mediacore/internal/models"
)

// FakeProber is a deterministic, in-memory capture.Prober for tests. Use
// SetPresent and SetSignal to configure a device; an unconfigured device is
// absent and reports a nil signal.
type FakeProber struct {
	mu      sync.Mutex
	present map[string]bool
	signals map[string]*capture.Signal
}

// NewFakeProber returns an empty FakeProber; every device is absent until
// configured.
func NewFakeProber() *FakeProber {
	return &FakeProber{
		present: make(map[string]bool),
		signals: make(map[string]*capture.Signal),
	}
}

// SetPresent marks devicePath as present (responds to capability queries)
// without necessarily carrying signal.
func (f *FakeProber) SetPresent(devicePath string, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[devicePath] = present
}

// SetSignal sets the (width,height,fps) devicePath reports. Passing nil
// simulates "no signal" (including a 0x0 hardware report), and implies
// present=true.
func (f *FakeProber) SetSignal(devicePath string, sig *capture.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[devicePath] = true
	f.signals[devicePath] = sig
}

// IsPresent implements capture.Prober.
func (f *FakeProber) IsPresent(_ context.Context, devicePath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[devicePath]
}

// CurrentSignal implements capture.Prober.
func (f *FakeProber) CurrentSignal(_ context.Context, devicePath string, _ models.CapabilityClass) (*capture.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signals[devicePath], nil
}

var _ capture.Prober = (*FakeProber)(nil)
