package platform

import (
	"errors"
	"testing"

	"github.com/BurntSushi/xgb"
	"github.com/godbus/dbus/v5"
)

func TestDetectSession(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want SessionType
	}{
		{"explicit wayland", map[string]string{"XDG_SESSION_TYPE": "wayland", "DISPLAY": ":0"}, SessionWayland},
		{"explicit x11", map[string]string{"XDG_SESSION_TYPE": "X11", "WAYLAND_DISPLAY": "wayland-0"}, SessionX11},
		{"wayland display", map[string]string{"WAYLAND_DISPLAY": "wayland-0", "DISPLAY": ":0"}, SessionWayland},
		{"x display", map[string]string{"DISPLAY": ":1"}, SessionX11},
		{"tty", map[string]string{"XDG_SESSION_TYPE": "tty"}, SessionUnknown},
		{"empty", nil, SessionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectSession(func(k string) string { return tt.env[k] })
			if got != tt.want {
				t.Errorf("detectSession = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConnectionErrors(t *testing.T) {
	c := New()
	dials := 0
	c.dialBus = func() (*dbus.Conn, error) {
		dials++
		return nil, errors.New("no bus")
	}
	c.dialX11 = func() (*xgb.Conn, error) { return nil, errors.New("no display") }

	if _, err := c.SessionBus(); err == nil {
		t.Error("expected session bus error")
	}
	// Failures are not cached
	if _, err := c.SessionBus(); err == nil || dials != 2 {
		t.Errorf("dials = %d, err = %v", dials, err)
	}
	if _, err := c.X11(); err == nil {
		t.Error("expected X11 error")
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SessionBus(); err == nil {
		t.Error("SessionBus after Close should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestNewIsLazy(t *testing.T) {
	c := New()
	if c.dialBus == nil || c.dialX11 == nil {
		t.Fatal("New left a dialer unset")
	}
	if c.bus != nil || c.x11 != nil {
		t.Fatal("New opened a connection eagerly")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close without connections: %v", err)
	}
	if _, err := c.SessionBus(); err == nil {
		t.Fatal("SessionBus succeeded after Close")
	}
}
