package pipeline

import (
	"strings"
	"testing"

	"github.com/embedops/mediacore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIngestSpec() IngestSpec {
	return IngestSpec{
		Device:          "/dev/video0",
		CapabilityClass: models.CapabilityDirectHDMI,
		FrameRate:       30,
		Width:           1920,
		Height:          1080,
		RecordQueue:     DefaultQueuePolicy,
		RecordEncoder: EncoderSpec{
			Placement:   models.EncoderHardware,
			BitrateKbps: 8000,
			CBR:         true,
		},
		RecordMux: MuxSpec{Container: "fmp4", Fragmented: true, FragSeconds: 1},
		RecordSink: FileSinkSpec{
			Directory:    "/recordings/cam1",
			CameraID:     "cam1",
			SessionID:    "sess123",
			SequenceFrom: 0,
		},
		StreamQueue: DefaultQueuePolicy,
		StreamEncoder: EncoderSpec{
			Placement:   models.EncoderSoftware,
			BitrateKbps: 2000,
			Profile:     "baseline",
			ZeroLatency: true,
		},
		StreamPublish: RTSPPublishSpec{ServerURL: "rtsp://127.0.0.1:8554", MountPath: "cam1"},
	}
}

func TestBuildIngestCommand_SingleCaptureInput(t *testing.T) {
	cmd := BuildIngestCommand("ffmpeg", testIngestSpec())
	require.NotNil(t, cmd)
	assert.Equal(t, "/dev/video0", cmd.Input, "capture device is the command's sole input")
	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-f v4l2")
}

func TestBuildIngestCommand_TeesRecordAndStreamBranches(t *testing.T) {
	cmd := BuildIngestCommand("ffmpeg", testIngestSpec())
	joined := strings.Join(cmd.Args, " ")

	assert.Contains(t, joined, "[rec]", "recording branch must be mapped from the split filter")
	assert.Contains(t, joined, "[stream]", "stream branch must be mapped from the split filter")
	assert.Contains(t, joined, "split=2")
}

func TestBuildIngestCommand_RecordBranchUsesHardwareEncoderAndFragmentedContainer(t *testing.T) {
	cmd := BuildIngestCommand("ffmpeg", testIngestSpec())
	joined := strings.Join(cmd.Args, " ")

	assert.Contains(t, joined, "h264_v4l2m2m", "hardware placement must select the VPU codec")
	assert.Contains(t, joined, "frag_keyframe")
	assert.Contains(t, joined, "cam1_sess123_000.mp4")
}

func TestBuildIngestCommand_StreamBranchUsesSoftwareBaselineAndRTSPOverTCP(t *testing.T) {
	cmd := BuildIngestCommand("ffmpeg", testIngestSpec())
	joined := strings.Join(cmd.Args, " ")

	assert.Contains(t, joined, "libx264")
	assert.Contains(t, joined, "baseline")
	assert.Contains(t, joined, "-rtsp_transport tcp")
	assert.Contains(t, joined, "rtsp://127.0.0.1:8554/cam1")
}

func TestBuildIngestCommand_GOPDefaultsToFrameRate(t *testing.T) {
	spec := testIngestSpec()
	spec.RecordEncoder.GOPFrames = 0
	cmd := BuildIngestCommand("ffmpeg", spec)
	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-g 30")
}

func testMixerSpec() MixerSpec {
	return MixerSpec{
		CanvasWidth:     1920,
		CanvasHeight:    1080,
		FrameRate:       30,
		BackgroundColor: "black",
		Slots: []MixerSlotSpec{
			{SinkIndex: 0, Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam1"}, Width: 1920, Height: 1080, ZOrder: 0, Opacity: 1, Visible: true},
			{SinkIndex: 1, Input: BlackSource, Width: 320, Height: 180, X: 1580, Y: 880, ZOrder: 1, Opacity: 1, Visible: false},
		},
		ProgramEncoder: EncoderSpec{Placement: models.EncoderSoftware, BitrateKbps: 4000, Profile: "baseline"},
		ProgramPublish: RTSPPublishSpec{ServerURL: "rtsp://127.0.0.1:8554", MountPath: "program"},
	}
}

func TestBuildMixerCommand_OneInputPerSlot(t *testing.T) {
	cmd := BuildMixerCommand("ffmpeg", testMixerSpec())
	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "rtsp://127.0.0.1/cam1")
	assert.Contains(t, joined, "color=c=black")
}

func TestBuildMixerCommand_PublishesProgramOverTCP(t *testing.T) {
	cmd := BuildMixerCommand("ffmpeg", testMixerSpec())
	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "rtsp://127.0.0.1:8554/program")
	assert.Contains(t, joined, "-rtsp_transport tcp")
}

func TestBuildCompositorFilter_OverlaysInAscendingZOrder(t *testing.T) {
	filter := BuildCompositorFilter(testMixerSpec())

	camIdx := strings.Index(filter, "overlay=0:0")
	pipIdx := strings.Index(filter, "overlay=1580:880")
	require.NotEqual(t, -1, camIdx)
	require.NotEqual(t, -1, pipIdx)
	assert.Less(t, camIdx, pipIdx, "lower z-order slot must be overlaid before a higher one")
}

func TestBuildCompositorFilter_HiddenSlotIsFullyTransparent(t *testing.T) {
	filter := BuildCompositorFilter(testMixerSpec())
	assert.Contains(t, filter, "aa=0.00", "an invisible slot must contribute zero alpha regardless of its Opacity value")
}

func TestBuildCompositorFilter_NoSlotsYieldsBareCanvas(t *testing.T) {
	spec := testMixerSpec()
	spec.Slots = nil
	filter := BuildCompositorFilter(spec)
	assert.Contains(t, filter, "[canvas]")
	assert.NotContains(t, filter, "overlay")
}

func TestEncoderName_HardwareSelectsVPUCodec(t *testing.T) {
	assert.Equal(t, "h264_v4l2m2m", encoderName(EncoderSpec{Placement: models.EncoderHardware}))
}

func TestEncoderName_SoftwareSelectsLibx264(t *testing.T) {
	assert.Equal(t, "libx264", encoderName(EncoderSpec{Placement: models.EncoderSoftware}))
}
