package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. FRAMETAP_RECORDER_BACKEND.
const EnvPrefix = "FRAMETAP"

// TokenFile is the restore-token file kept next to the config file.
const TokenFile = "portal_token"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager. An empty configFile
// selects the default path; a missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		configPath: path,
		v:          v,
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		if err := m.reload(); err != nil {
			return nil, err
		}
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err := m.reload(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", path).
		Str("backend", m.Get().Recorder.Backend).
		Msg("Config loaded")

	return m, nil
}

// DefaultConfigDir returns the frametap directory under the user config
// directory ($XDG_CONFIG_HOME or ~/.config on Linux).
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "frametap"), nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
	v.SetDefault("server_port", d.ServerPort)

	v.SetDefault("recorder.backend", d.Recorder.Backend)
	v.SetDefault("recorder.monitor", d.Recorder.Monitor)
	v.SetDefault("recorder.window_id", d.Recorder.WindowID)
	v.SetDefault("recorder.region.x", 0)
	v.SetDefault("recorder.region.y", 0)
	v.SetDefault("recorder.region.width", 0)
	v.SetDefault("recorder.region.height", 0)
	v.SetDefault("recorder.poll_buffer", d.Recorder.PollBuffer)
	v.SetDefault("recorder.push_buffer", d.Recorder.PushBuffer)
	v.SetDefault("recorder.acquire_timeout", d.Recorder.AcquireTimeout)
	v.SetDefault("recorder.retry_delay", d.Recorder.RetryDelay)
	v.SetDefault("recorder.poll_interval", d.Recorder.PollInterval)
	v.SetDefault("recorder.max_consecutive_failures", d.Recorder.MaxConsecutiveFailures)

	v.SetDefault("portal.request_timeout", d.Portal.RequestTimeout)
	v.SetDefault("portal.select_timeout", d.Portal.SelectTimeout)
	v.SetDefault("portal.cursor_mode", d.Portal.CursorMode)
	v.SetDefault("portal.persist_mode", d.Portal.PersistMode)
	v.SetDefault("portal.restore_token_path", d.Portal.RestoreTokenPath)

	v.SetDefault("stream.client", d.Stream.Client)
	v.SetDefault("stream.negotiate_timeout", d.Stream.NegotiateTimeout)
	v.SetDefault("stream.max_width", d.Stream.MaxWidth)
	v.SetDefault("stream.max_height", d.Stream.MaxHeight)
	v.SetDefault("stream.framerate", d.Stream.Framerate)

	v.SetDefault("output.width", d.Output.Width)
	v.SetDefault("output.height", d.Output.Height)
	v.SetDefault("output.jpeg_quality", d.Output.JPEGQuality)
}

// reload decodes the viper state into a fresh Config
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Portal.RestoreTokenPath == "" {
		cfg.Portal.RestoreTokenPath = filepath.Join(filepath.Dir(m.configPath), TokenFile)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		cfg := Defaults()
		return &cfg
	}
	cfg := *m.config
	return &cfg
}

// GetViper exposes the underlying viper instance for key based access
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// Save writes the current settings to disk. Values changed through
// GetViper().Set are picked up first.
func (m *Manager) Save() error {
	if err := m.reload(); err != nil {
		return err
	}

	log := logger.WithComponent("config")
	log.Debug().Str("path", m.configPath).Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(humanize(m.v.AllSettings()))
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Info().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// humanize renders durations as strings so the file stays hand editable
func humanize(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, val := range settings {
		switch t := val.(type) {
		case time.Duration:
			out[k] = t.String()
		case map[string]interface{}:
			out[k] = humanize(t)
		default:
			out[k] = val
		}
	}
	return out
}

// Watch reloads the config whenever the file changes and passes the new
// value to onChange.
func (m *Manager) Watch(onChange func(*Config)) {
	log := logger.WithComponent("config")
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := m.reload(); err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("Ignoring invalid config change")
			return
		}
		log.Info().Str("path", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(m.Get())
		}
	})
	m.v.WatchConfig()
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	m.v.Set("server_port", port)
	return m.reload()
}

// GetPort returns the server port
func (m *Manager) GetPort() int {
	return m.Get().ServerPort
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	m.v.Set("log_level", level)
	return m.reload()
}

// SetBackend overrides the recorder backend
func (m *Manager) SetBackend(backend string) error {
	m.v.Set("recorder.backend", backend)
	return m.reload()
}

// SetMonitor overrides the target monitor
func (m *Manager) SetMonitor(monitor int) error {
	m.v.Set("recorder.monitor", monitor)
	return m.reload()
}

// GetConfigPath returns the config file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the directory holding the config file
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
