package pipewire

import (
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Session is a started ScreenCast session
type Session struct {
	conn    *dbus.Conn
	handle  dbus.ObjectPath
	nodeID  uint32
	fd      int
	streams []Stream

	once sync.Once
	err  error
}

// Handle returns the session object path
func (s *Session) Handle() string { return string(s.handle) }

// NodeID returns the PipeWire node of the first stream
func (s *Session) NodeID() uint32 { return s.nodeID }

// RemoteFD returns the PipeWire remote opened for this session, or -1
func (s *Session) RemoteFD() int { return s.fd }

// Streams returns every stream the portal started
func (s *Session) Streams() []Stream { return s.streams }

// Close ends the portal session and closes the PipeWire remote
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.fd >= 0 {
			os.NewFile(uintptr(s.fd), "pipewire-remote").Close()
			s.fd = -1
		}
		if s.handle != "" {
			s.err = s.conn.Object(portalService, s.handle).Call(sessionIface+".Close", 0).Err
		}
	})
	return s.err
}
