package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// CameraConfig describes one of up to four HDMI capture inputs.
type CameraConfig struct {
	ID                string   `mapstructure:"id" yaml:"id"`
	DevicePath        string   `mapstructure:"device_path" yaml:"device_path"`
	CapabilityClass   string   `mapstructure:"capability_class" yaml:"capability_class"`
	MaxWidth          int      `mapstructure:"max_width" yaml:"max_width"`
	MaxHeight         int      `mapstructure:"max_height" yaml:"max_height"`
	CodecPreference   []string `mapstructure:"codec_preference" yaml:"codec_preference"`
	TargetBitrateKbps int      `mapstructure:"target_bitrate_kbps" yaml:"target_bitrate_kbps"`
	Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
}

// ServerConfig configures the control API's HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig configures the GORM-backed catalogue store.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path" yaml:"path"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// StorageConfig configures the on-disk layout roots.
type StorageConfig struct {
	RecordingRoot string `mapstructure:"recording_root" yaml:"recording_root"`
}

// VPUConfig configures the hardware encode/decode session budget (C1).
type VPUConfig struct {
	MaxEncodeSessions int `mapstructure:"max_encode_sessions" yaml:"max_encode_sessions"`
	MaxDecodeSessions int `mapstructure:"max_decode_sessions" yaml:"max_decode_sessions"`
}

// SupervisorConfig configures the per-camera probe tick loop (C5).
type SupervisorConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

// RecordingConfig configures recording-session disk gating (C6).
// RotateMaxBytes and RotateMaxWall accept human-friendly strings ("2GiB",
// "90m") via ByteSize/Duration's Viper text-unmarshaling, same as the
// teacher's own config scalars.
type RecordingConfig struct {
	WarningGB      float64  `mapstructure:"warning_gb" yaml:"warning_gb"`
	MinGB          float64  `mapstructure:"min_gb" yaml:"min_gb"`
	RotateMaxBytes ByteSize `mapstructure:"rotate_max_bytes" yaml:"rotate_max_bytes"`
	RotateMaxWall  Duration `mapstructure:"rotate_max_wall" yaml:"rotate_max_wall"`
}

// MixerConfig configures the compositor/program-encoder process (C8).
type MixerConfig struct {
	CanvasWidth     int    `mapstructure:"canvas_width" yaml:"canvas_width"`
	CanvasHeight    int    `mapstructure:"canvas_height" yaml:"canvas_height"`
	FrameRate       int    `mapstructure:"frame_rate" yaml:"frame_rate"`
	BackgroundColor string `mapstructure:"background_color" yaml:"background_color"`
}

// WebhookConfig configures outbound event delivery (C9).
type WebhookConfig struct {
	URLs []string `mapstructure:"urls" yaml:"urls"`
}

// MediaServerConfig configures the colocated media server boundary (§6.2).
type MediaServerConfig struct {
	RTSPHost string `mapstructure:"rtsp_host" yaml:"rtsp_host"`
	RTSPPort int    `mapstructure:"rtsp_port" yaml:"rtsp_port"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// FFmpegConfig locates the ffmpeg binary ingest/mixer pipelines shell out to.
type FFmpegConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RelayCredConfig configures the external media-relay credential fetch (§6.5).
// An empty Endpoint disables the cache entirely; the control API then
// reports relay delivery as unavailable rather than degraded.
type RelayCredConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Config is the full process configuration, read once at startup per §6.3's
// "hot-reload is NOT required" decision.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	VPU         VPUConfig         `mapstructure:"vpu" yaml:"vpu"`
	Cameras     []CameraConfig    `mapstructure:"cameras" yaml:"cameras"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor" yaml:"supervisor"`
	Recording   RecordingConfig   `mapstructure:"recording" yaml:"recording"`
	Mixer       MixerConfig       `mapstructure:"mixer" yaml:"mixer"`
	Webhooks    WebhookConfig     `mapstructure:"webhooks" yaml:"webhooks"`
	MediaServer MediaServerConfig `mapstructure:"media_server" yaml:"media_server"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	RelayCred   RelayCredConfig   `mapstructure:"relay_cred" yaml:"relay_cred"`
}

// SetDefaults populates v with every default value this package relies on,
// so a fresh install without a config file still runs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "mediacore.db")

	v.SetDefault("storage.recording_root", "data/recordings")

	v.SetDefault("vpu.max_encode_sessions", 4)
	v.SetDefault("vpu.max_decode_sessions", 4)

	v.SetDefault("supervisor.tick_interval", 10*time.Second)

	v.SetDefault("recording.warning_gb", 20.0)
	v.SetDefault("recording.min_gb", 5.0)
	v.SetDefault("recording.rotate_max_bytes", "2GiB")
	v.SetDefault("recording.rotate_max_wall", "1h")

	v.SetDefault("mixer.canvas_width", 1920)
	v.SetDefault("mixer.canvas_height", 1080)
	v.SetDefault("mixer.frame_rate", 30)
	v.SetDefault("mixer.background_color", "black")

	v.SetDefault("media_server.rtsp_host", "127.0.0.1")
	v.SetDefault("media_server.rtsp_port", 8554)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")

	v.SetDefault("ffmpeg.path", "ffmpeg")

	v.SetDefault("relay_cred.endpoint", "")
}

// Load builds a Config from the given viper instance, which the caller has
// already pointed at a config file (or not) and environment.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	return &cfg, nil
}
