package ingest

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/testutil"
	"github.com/embedops/mediacore/internal/vpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testDevice() models.DeviceDescriptor {
	return models.DeviceDescriptor{
		ID:                "cam1",
		DevicePath:        "/dev/video0",
		CapabilityClass:   models.CapabilityDirectHDMI,
		MaxWidth:          1920,
		MaxHeight:         1080,
		TargetBitrateKbps: 8000,
		Enabled:           true,
	}
}

func TestWorker_EnableTransitionsDisabledToIdle(t *testing.T) {
	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())

	snap := w.Describe()
	assert.Equal(t, models.IngestDisabled, snap.State)

	w.Enable()
	snap = w.Describe()
	assert.Equal(t, models.IngestIdle, snap.State)
}

func TestWorker_DescribeNeverFails(t *testing.T) {
	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())
	assert.NotPanics(t, func() { w.Describe() })
}

func TestWorker_AttachRecordingFailsWhenNotStreaming(t *testing.T) {
	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())
	w.Enable()

	err := w.AttachRecording("sess1", "/tmp")
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrNoSignal, coreErr.Kind)
}

func TestWorker_DetachRecordingFailsWhenNoneAttached(t *testing.T) {
	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())
	err := w.DetachRecording()
	require.Error(t, err)
	var coreErr *models.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, models.ErrNotFound, coreErr.Kind)
}

func TestWorker_ProbeSignalIsNoopWhenDisabled(t *testing.T) {
	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())
	w.ProbeSignal(context.Background())
	assert.Equal(t, models.IngestDisabled, w.Describe().State)
}

func TestWorker_HandleBusErrorFatalTransitionsToError(t *testing.T) {
	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())
	w.Enable()

	w.HandleBusError(context.Background(), false, "decoder crashed")
	snap := w.Describe()
	assert.Equal(t, models.IngestError, snap.State)
	assert.Equal(t, "decoder crashed", snap.LastError)
}

func TestWorker_HandleBusErrorTransientGoesToNoSignalAndSchedulesRetry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w := New(testDevice(), testutil.NewFakeProber(), vpu.New(4, 4), events.New(), "ffmpeg", testLogger())
	w.Enable()

	w.HandleBusError(ctx, true, "transient bus glitch")
	assert.Equal(t, models.IngestNoSignal, w.Describe().State)
}
