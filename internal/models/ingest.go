package models

import "time"

// CapabilityClass distinguishes a capture device that exposes an authoritative
// HDMI-bridge subdevice (fast, reliable signal queries) from one where only
// the direct video device node is available.
type CapabilityClass string

const (
	CapabilityDirectHDMI        CapabilityClass = "direct-hdmi"
	CapabilityBridgedSubdevice  CapabilityClass = "bridged-subdevice"
)

// EncoderPlacement records whether a pipeline branch landed on the hardware
// VPU or fell back to software.
type EncoderPlacement string

const (
	EncoderHardware EncoderPlacement = "hardware"
	EncoderSoftware EncoderPlacement = "software"
)

// DeviceDescriptor is the static, config-derived description of one capture
// device.
type DeviceDescriptor struct {
	ID               CameraID
	DevicePath       string
	CapabilityClass  CapabilityClass
	MaxWidth         int
	MaxHeight        int
	CodecPreference  []string
	TargetBitrateKbps int
	Enabled          bool
}

// IngestState is the authoritative state of one ingest worker.
type IngestState string

const (
	IngestDisabled  IngestState = "DISABLED"
	IngestIdle      IngestState = "IDLE"
	IngestNoSignal  IngestState = "NO_SIGNAL"
	IngestStreaming IngestState = "STREAMING"
	IngestError     IngestState = "ERROR"
)

// Resolution is a concrete (width, height) pair.
type Resolution struct {
	Width  int
	Height int
}

// IngestSnapshot is the read-only view returned by describe().
type IngestSnapshot struct {
	CameraID            CameraID
	DevicePath          string
	State               IngestState
	HasSignal           bool
	CurrentResolution   *Resolution
	SignalLossSince     *time.Time
	ConfiguredEncoder   EncoderPlacement
	VpuSlotsHeld        int
	RecordingAttached   bool
	LastError           string
}
