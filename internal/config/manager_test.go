package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !strings.Contains(string(data), "acquire_timeout: 200ms") {
		t.Errorf("durations not written as strings:\n%s", data)
	}

	cfg := m.Get()
	want := Defaults()
	if cfg.Recorder.AcquireTimeout != want.Recorder.AcquireTimeout ||
		cfg.Recorder.Backend != "auto" ||
		cfg.Portal.SelectTimeout != want.Portal.SelectTimeout {
		t.Errorf("unexpected defaults: %+v", cfg.Recorder)
	}
	if got := cfg.Portal.RestoreTokenPath; got != filepath.Join(filepath.Dir(path), TokenFile) {
		t.Errorf("restore token path = %q", got)
	}
}

func TestManagerReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `log_level: debug
recorder:
  backend: raw
  retry_delay: 25ms
  region:
    width: 400
    height: 300
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRAMETAP_RECORDER_MONITOR", "2")

	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	if cfg.LogLevel != "debug" || cfg.Recorder.Backend != "raw" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Recorder.RetryDelay != 25*time.Millisecond {
		t.Errorf("retry_delay = %v", cfg.Recorder.RetryDelay)
	}
	if cfg.Recorder.Region.Width != 400 || cfg.Recorder.Region.Height != 300 {
		t.Errorf("region = %+v", cfg.Recorder.Region)
	}
	if cfg.Recorder.Monitor != 2 {
		t.Errorf("env override ignored: monitor = %d", cfg.Recorder.Monitor)
	}
	if cfg.Recorder.PollInterval != time.Millisecond {
		t.Errorf("missing key did not fall back to default: %v", cfg.Recorder.PollInterval)
	}
}

func TestManagerSetAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}

	m.GetViper().Set("recorder.backend", "portal")
	if err := m.SetPort(9999); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}

	again, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := again.Get(); got.ServerPort != 9999 || got.Recorder.Backend != "portal" {
		t.Errorf("saved config not reloaded: port=%d backend=%s", got.ServerPort, got.Recorder.Backend)
	}
}

func TestManagerRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("recorder: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager(path); err == nil {
		t.Fatal("broken YAML accepted")
	}
}

func TestDefaultConfigDirHonoursXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only consulted on Linux")
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	dir, err := DefaultConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "frametap"); dir != want {
		t.Fatalf("DefaultConfigDir = %s, want %s", dir, want)
	}

	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if got := m.GetConfigPath(); got != filepath.Join(base, "frametap", "config.yaml") {
		t.Errorf("config path = %s", got)
	}
	if got := m.Get().Portal.RestoreTokenPath; got != filepath.Join(base, "frametap", "portal_token") {
		t.Errorf("token path = %s", got)
	}
	if _, err := os.Stat(m.GetConfigPath()); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}
