package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/embedops/mediacore/internal/ffmpeg"
	"github.com/embedops/mediacore/internal/models"
)

// encoderName maps an EncoderSpec targeting the on-SoC VPU to its FFmpeg
// encoder name. The reference platform exposes the VPU as a V4L2 M2M codec;
// falling back to libx264 is how EncoderSoftware is realized.
func encoderName(spec EncoderSpec) string {
	if spec.Placement == models.EncoderHardware {
		return "h264_v4l2m2m"
	}
	return "libx264"
}

// BuildIngestCommand renders an IngestSpec into one ffmpeg command with a
// single capture input and two -map'd outputs, one per tee branch: a split
// filter feeds the recording branch ([rec]) and the stream branch ([stream]).
// Only one fd can stream from a V4L2 node at a time, so both branches share
// this one process rather than each opening the device.
func BuildIngestCommand(ffmpegPath string, spec IngestSpec) *ffmpeg.Command {
	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		LogLevel("error").
		Overwrite().
		InputArgs("-f", "v4l2", "-input_format", "yuyv422",
			"-video_size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
			"-framerate", strconv.Itoa(spec.FrameRate)).
		Input(spec.Device)

	scaleFilter := fmt.Sprintf("fps=%d,format=yuv420p,scale=%d:%d,split=2[rec][stream]",
		spec.FrameRate, spec.Width, spec.Height)
	b = b.OutputArgs("-filter_complex", scaleFilter)

	recEncoder := spec.RecordEncoder
	recGOP := recEncoder.GOPFrames
	if recGOP <= 0 {
		recGOP = spec.FrameRate
	}
	recArgs := []string{
		"-map", "[rec]",
		"-c:v", encoderName(recEncoder),
		"-g", strconv.Itoa(recGOP),
		"-b:v", fmt.Sprintf("%dk", recEncoder.BitrateKbps),
		"-bsf:v", "h264_mp4toannexb",
	}
	if recEncoder.CBR {
		recArgs = append(recArgs, "-minrate", fmt.Sprintf("%dk", recEncoder.BitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", recEncoder.BitrateKbps),
			"-bufsize", fmt.Sprintf("%dk", 2*recEncoder.BitrateKbps))
	}
	recArgs = append(recArgs,
		"-f", "mp4",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-frag_duration", strconv.Itoa(int(spec.RecordMux.FragSeconds*1_000_000)),
		recordSinkPath(spec.RecordSink),
	)
	b = b.OutputArgs(recArgs...)

	streamEncoder := spec.StreamEncoder
	streamGOP := streamEncoder.GOPFrames
	if streamGOP <= 0 {
		streamGOP = spec.FrameRate
	}
	streamArgs := []string{
		"-map", "[stream]",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-g", strconv.Itoa(streamGOP),
		"-b:v", fmt.Sprintf("%dk", streamEncoder.BitrateKbps),
		"-bsf:v", "h264_mp4toannexb",
		"-f", "rtsp",
		"-rtsp_transport", "tcp",
		rtspURL(spec.StreamPublish),
	}
	b = b.OutputArgs(streamArgs...)

	return b.Build()
}

func recordSinkPath(sink FileSinkSpec) string {
	return filepath.Join(sink.Directory, fmt.Sprintf("cam%s_%s_%03d.mp4",
		sink.CameraID, sink.SessionID, sink.SequenceFrom))
}

func rtspURL(pub RTSPPublishSpec) string {
	return strings.TrimRight(pub.ServerURL, "/") + "/" + strings.TrimLeft(pub.MountPath, "/")
}

// BuildMixerCommand renders a MixerSpec into one long-running ffmpeg command:
// one input per slot (a black test-source input fills unused slots so the
// compositor's pad count is fixed for the process lifetime), composited with
// a chain of overlay filters placed by slot geometry, and published to the
// media server's "program" mount. Scene switches never call this function
// again — internal/mixer rewrites slot geometry in place on the running
// process through a CompositorController instead of rebuilding.
func BuildMixerCommand(ffmpegPath string, spec MixerSpec) *ffmpeg.Command {
	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		LogLevel("error").
		Overwrite()

	for _, slot := range spec.Slots {
		b = b.InputArgs(inputArgsFor(slot, spec.FrameRate)...)
	}

	filter := BuildCompositorFilter(spec)
	b = b.OutputArgs("-filter_complex", filter, "-map", "[canvas]", "-map", "0:a?")

	programGOP := spec.ProgramEncoder.GOPFrames
	if programGOP <= 0 {
		programGOP = spec.FrameRate
	}
	b = b.OutputArgs(
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-g", strconv.Itoa(programGOP),
		"-b:v", fmt.Sprintf("%dk", spec.ProgramEncoder.BitrateKbps),
		"-bsf:v", "h264_mp4toannexb",
		"-f", "rtsp",
		"-rtsp_transport", "tcp",
		rtspURL(spec.ProgramPublish),
	)

	return b.Build()
}

// inputArgsFor renders one compositor slot's source as an ffmpeg input. A
// camera slot reads the ingest worker's already-running stream-branch RTSP
// mount rather than re-opening the V4L2 device, so recording and mixing
// never contend for the same capture fd.
func inputArgsFor(slot MixerSlotSpec, frameRate int) []string {
	switch slot.Input.Kind {
	case models.InputCamera:
		return []string{"-rtsp_transport", "tcp", "-i", "rtsp://127.0.0.1/" + string(slot.Input.CameraID)}
	case models.InputFile:
		args := []string{}
		if slot.Input.FileLoop {
			args = append(args, "-stream_loop", "-1")
		}
		return append(args, "-i", slot.Input.FilePath)
	case models.InputGraphic:
		return []string{"-loop", "1", "-i", slot.Input.FilePath}
	case models.InputGuest:
		return []string{"-rtsp_transport", "tcp", "-i", "rtsp://127.0.0.1/guest/" + slot.Input.GuestSlot}
	default: // test_pattern / black
		return []string{"-f", "lavfi", "-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d", slot.Width, slot.Height, frameRate)}
	}
}

// BuildCompositorFilter constructs the filter_complex graph compositing
// every slot onto the canvas in z-order. Each slot scales into its target
// box, then successive overlays stack it onto a black canvas base, lowest
// z-order first — equivalent in shape to the xstack/overlay graphs a fixed
// grid layout would use, but driven by arbitrary slot geometry rather than a
// named layout.
func BuildCompositorFilter(spec MixerSpec) string {
	ordered := orderedByZ(spec.Slots)

	var parts []string
	parts = append(parts, fmt.Sprintf("color=c=%s:s=%dx%d:r=%d[base0]",
		canvasColor(spec.BackgroundColor), spec.CanvasWidth, spec.CanvasHeight, spec.FrameRate))

	prev := "base0"
	for i, slot := range ordered {
		scaled := fmt.Sprintf("s%d", slot.SinkIndex)
		parts = append(parts, fmt.Sprintf("[%d:v]scale=%d:%d,format=yuva420p,colorchannelmixer=aa=%.2f[%s]",
			slot.SinkIndex, slot.Width, slot.Height, visibleOpacity(slot), scaled))

		next := fmt.Sprintf("base%d", i+1)
		if i == len(ordered)-1 {
			next = "canvas"
		}
		parts = append(parts, fmt.Sprintf("[%s][%s]overlay=%d:%d[%s]", prev, scaled, slot.X, slot.Y, next))
		prev = next
	}

	if len(ordered) == 0 {
		return fmt.Sprintf("color=c=%s:s=%dx%d:r=%d[canvas]",
			canvasColor(spec.BackgroundColor), spec.CanvasWidth, spec.CanvasHeight, spec.FrameRate)
	}

	return strings.Join(parts, ";")
}

func visibleOpacity(slot MixerSlotSpec) float64 {
	if !slot.Visible {
		return 0
	}
	return slot.Opacity
}

func canvasColor(hex string) string {
	if hex == "" {
		return "black"
	}
	return hex
}

// orderedByZ returns slots sorted by ascending ZOrder — lowest first, so the
// overlay chain paints them back-to-front.
func orderedByZ(slots []MixerSlotSpec) []MixerSlotSpec {
	out := make([]MixerSlotSpec, len(slots))
	copy(out, slots)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ZOrder < out[j-1].ZOrder; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
