// Package platform holds the process-wide connections capture backends
// need: the session D-Bus connection and the X11 display connection. A
// Context is created once at startup and passed into recorder
// construction; connections are opened on first use and shared.
package platform

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// SessionType is the kind of graphical session the process runs in
type SessionType string

const (
	SessionWayland SessionType = "wayland"
	SessionX11     SessionType = "x11"
	SessionWindows SessionType = "windows"
	SessionDarwin  SessionType = "darwin"
	SessionUnknown SessionType = "unknown"
)

// Context owns shared platform connections
type Context struct {
	getenv func(string) string
	log    *zerolog.Logger

	mu      sync.Mutex
	bus     *dbus.Conn
	x11     *xgb.Conn
	closed  bool
	dialBus func() (*dbus.Conn, error)
	dialX11 func() (*xgb.Conn, error)
}

// New creates a platform context. No connection is opened yet.
func New() *Context {
	return &Context{
		getenv:  os.Getenv,
		log:     logger.WithComponent("platform"),
		dialBus: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
		dialX11: xgb.NewConn,
	}
}

// SessionType detects the graphical session from the environment
func (c *Context) SessionType() SessionType {
	switch runtime.GOOS {
	case "windows":
		return SessionWindows
	case "darwin":
		return SessionDarwin
	}
	return detectSession(c.getenv)
}

func detectSession(getenv func(string) string) SessionType {
	switch strings.ToLower(getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return SessionWayland
	case "x11":
		return SessionX11
	}
	if getenv("WAYLAND_DISPLAY") != "" {
		return SessionWayland
	}
	if getenv("DISPLAY") != "" {
		return SessionX11
	}
	return SessionUnknown
}

// SessionBus returns the shared session bus connection, connecting on
// first use
func (c *Context) SessionBus() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("platform context closed")
	}
	if c.bus != nil {
		return c.bus, nil
	}
	conn, err := c.dialBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	c.bus = conn
	c.log.Debug().Strs("names", conn.Names()).Msg("Connected to session bus")
	return conn, nil
}

// X11 returns the shared X11 connection, connecting on first use
func (c *Context) X11() (*xgb.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("platform context closed")
	}
	if c.x11 != nil {
		return c.x11, nil
	}
	conn, err := c.dialX11()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	c.x11 = conn
	c.log.Debug().Msg("Connected to X server")
	return conn, nil
}

// Close closes every connection that was opened. Recorders built on this
// context must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.bus != nil {
		err = c.bus.Close()
		c.bus = nil
	}
	if c.x11 != nil {
		c.x11.Close()
		c.x11 = nil
	}
	return err
}
