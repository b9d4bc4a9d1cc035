// Package pipeline implements the pipeline builder (C3): a pure function
// from a declarative spec to a media-framework pipeline description. It
// holds no process state of its own — internal/ingest and internal/mixer own
// the processes; this package only describes their shape.
package pipeline

import "github.com/embedops/mediacore/internal/models"

// QueuePolicy describes a bounded, leaky queue between two pipeline stages.
// MaxBufferedSeconds bounds memory when the downstream stage stalls; once
// full, the oldest buffered frame is dropped rather than blocking upstream.
type QueuePolicy struct {
	MaxBufferedSeconds float64
}

// DefaultQueuePolicy is the tee-branch queue policy required by the ingest
// dual-output spec: at most 2s of buffered duration per branch.
var DefaultQueuePolicy = QueuePolicy{MaxBufferedSeconds: 2}

// EncoderSpec parameterizes one encoder stage. GOP is expressed in frames
// and is set to the stream's framerate by callers, giving a ~1s keyframe
// interval.
type EncoderSpec struct {
	Placement   models.EncoderPlacement
	Codec       string // e.g. "h264"
	BitrateKbps int
	GOPFrames   int
	Profile     string // "baseline", "main", "high"
	ZeroLatency bool
	CBR         bool
}

// MuxSpec parameterizes the recording branch's container. Fragmented means
// the file is readable by an NLE while still growing.
type MuxSpec struct {
	Container  string // "fmp4" or "matroska"
	Fragmented bool
	FragSeconds float64
}

// FileSinkSpec describes the rotating recording file destination. The
// pipeline builder does not perform rotation itself — internal/recording
// triggers it by instructing the ingest worker to reopen the sink at a new
// path — but the spec carries the starting path and sequence.
type FileSinkSpec struct {
	Directory    string
	CameraID     models.CameraID
	SessionID    string
	SequenceFrom uint32
}

// RTSPPublishSpec describes the stream branch's publish target on the
// colocated media server. TCP transport is mandatory: it avoids the
// timestamp artefacts UDP packet loss introduces into a live switch.
type RTSPPublishSpec struct {
	ServerURL string
	MountPath string // e.g. "cam1" or "program"
}

// IngestSpec is the ingest-dual-output pipeline spec (§4.3): one capture
// source teed into a recording branch and a stream branch.
type IngestSpec struct {
	Device          string
	CapabilityClass models.CapabilityClass
	FrameRate       int
	Width           int
	Height          int

	RecordQueue    QueuePolicy
	RecordEncoder  EncoderSpec
	RecordMux      MuxSpec
	RecordSink     FileSinkSpec

	StreamQueue   QueuePolicy
	StreamEncoder EncoderSpec
	StreamPublish RTSPPublishSpec
}

// MixerSlotSpec is one compositor input: a decoded, scaled source feeding a
// fixed compositor sink pad. Unused slots are bound to a black source so the
// compositor's pad count never changes across scene switches.
type MixerSlotSpec struct {
	SinkIndex int
	Input     models.MixerInput
	Width     int
	Height    int
	X         int
	Y         int
	ZOrder    int
	Opacity   float64
	Visible   bool
	Queue     QueuePolicy
}

// MixerSpec is the mixer pipeline spec (§4.3): built once at mixer start and
// never rebuilt; scene switches rewrite MixerSlotSpec values in place.
type MixerSpec struct {
	CanvasWidth     int
	CanvasHeight    int
	FrameRate       int
	BackgroundColor string
	Slots           []MixerSlotSpec
	ProgramEncoder  EncoderSpec
	ProgramPublish  RTSPPublishSpec
}

// BlackSource is the input bound to a MixerSlotSpec otherwise unused by the
// current scene, keeping compositor pad count constant.
var BlackSource = models.MixerInput{Kind: models.InputTestPattern}
