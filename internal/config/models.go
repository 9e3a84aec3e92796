package config

import "time"

// Config represents the application configuration
type Config struct {
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`

	Recorder RecorderConfig `json:"recorder" yaml:"recorder" mapstructure:"recorder"`
	Portal   PortalConfig   `json:"portal" yaml:"portal" mapstructure:"portal"`
	Stream   StreamConfig   `json:"stream" yaml:"stream" mapstructure:"stream"`
	Output   OutputConfig   `json:"output" yaml:"output" mapstructure:"output"`
}

// RecorderConfig selects and tunes the capture backend
type RecorderConfig struct {
	// Backend is auto, duplication, push, portal or raw
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Monitor int    `json:"monitor" yaml:"monitor" mapstructure:"monitor"`
	// WindowID restricts capture to one window where supported
	WindowID uint32 `json:"window_id" yaml:"window_id" mapstructure:"window_id"`
	// Region crops the monitor (raw backend only); zero width means full monitor
	Region Geometry `json:"region" yaml:"region" mapstructure:"region"`

	PollBuffer             int           `json:"poll_buffer" yaml:"poll_buffer" mapstructure:"poll_buffer"`
	PushBuffer             int           `json:"push_buffer" yaml:"push_buffer" mapstructure:"push_buffer"`
	AcquireTimeout         time.Duration `json:"acquire_timeout" yaml:"acquire_timeout" mapstructure:"acquire_timeout"`
	RetryDelay             time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
	PollInterval           time.Duration `json:"poll_interval" yaml:"poll_interval" mapstructure:"poll_interval"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures" yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
}

// Geometry represents a screen rectangle
type Geometry struct {
	X      int `json:"x" yaml:"x" mapstructure:"x"`
	Y      int `json:"y" yaml:"y" mapstructure:"y"`
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// PortalConfig tunes xdg-desktop-portal ScreenCast negotiation
type PortalConfig struct {
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	// SelectTimeout covers SelectSources and Start, which may wait on a user dialog
	SelectTimeout time.Duration `json:"select_timeout" yaml:"select_timeout" mapstructure:"select_timeout"`
	// CursorMode is hidden, embedded or metadata
	CursorMode string `json:"cursor_mode" yaml:"cursor_mode" mapstructure:"cursor_mode"`
	// PersistMode is none, application or session
	PersistMode      string `json:"persist_mode" yaml:"persist_mode" mapstructure:"persist_mode"`
	RestoreTokenPath string `json:"restore_token_path" yaml:"restore_token_path" mapstructure:"restore_token_path"`
}

// StreamConfig tunes the PipeWire stream client
type StreamConfig struct {
	// Client is gst (in-process) or launch (gst-launch-1.0 subprocess)
	Client           string        `json:"client" yaml:"client" mapstructure:"client"`
	NegotiateTimeout time.Duration `json:"negotiate_timeout" yaml:"negotiate_timeout" mapstructure:"negotiate_timeout"`
	// MaxWidth and MaxHeight bound the video size offered to PipeWire
	MaxWidth  int `json:"max_width" yaml:"max_width" mapstructure:"max_width"`
	MaxHeight int `json:"max_height" yaml:"max_height" mapstructure:"max_height"`
	Framerate int `json:"framerate" yaml:"framerate" mapstructure:"framerate"`
}

// OutputConfig controls the MJPEG output
type OutputConfig struct {
	Width       int `json:"width" yaml:"width" mapstructure:"width"`
	Height      int `json:"height" yaml:"height" mapstructure:"height"`
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		LogLevel:   "info",
		ServerPort: 8090,
		Recorder: RecorderConfig{
			Backend:                "auto",
			PollBuffer:             2,
			PushBuffer:             0,
			AcquireTimeout:         200 * time.Millisecond,
			RetryDelay:             10 * time.Millisecond,
			PollInterval:           time.Millisecond,
			MaxConsecutiveFailures: 100,
		},
		Portal: PortalConfig{
			RequestTimeout: 30 * time.Second,
			SelectTimeout:  2 * time.Minute,
			CursorMode:     "embedded",
			PersistMode:    "session",
		},
		Stream: StreamConfig{
			Client:           "gst",
			NegotiateTimeout: 5 * time.Second,
			MaxWidth:         4096,
			MaxHeight:        4096,
			Framerate:        24,
		},
		Output: OutputConfig{
			JPEGQuality: 80,
		},
	}
}
