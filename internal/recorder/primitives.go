package recorder

import (
	"context"
	"image"
	"time"
)

// Target selects what to record. Monitor is a platform monitor index.
// WindowID, when non-zero, narrows capture to one window on backends that
// support it. Region, when non-empty, crops the monitor (raw poller only).
type Target struct {
	Monitor  int
	WindowID uint32
	Region   image.Rectangle
}

// FrameInfo is the metadata returned with an acquired duplication frame.
// LastPresentTime is zero when the desktop image did not change.
type FrameInfo struct {
	LastPresentTime   int64
	AccumulatedFrames uint32
}

// Duplicator is a GPU output duplication interface. Between a successful
// AcquireNextFrame and ReleaseFrame the caller holds the frame; MapFrame
// copies it to CPU memory and the returned Surface stays valid until
// UnmapFrame.
type Duplicator interface {
	AcquireNextFrame(timeout time.Duration) (FrameInfo, error)
	MapFrame() (Surface, error)
	UnmapFrame()
	ReleaseFrame() error
	Close() error
}

// PixelBuffer is a native frame handed to a CaptureSession callback.
type PixelBuffer interface {
	Lock() (Surface, error)
	Unlock()
}

// CaptureSession is a compositor capture stream that pushes frames to a
// callback on a thread it owns. Start begins delivery; onStop is called
// at most once if the platform ends the stream by itself. Close must not
// return while a callback is still running.
type CaptureSession interface {
	Format() PixelFormat
	Start(onBuffer func(PixelBuffer), onStop func(error)) error
	Close() error
}

// PortalSession is a negotiated screencast session.
type PortalSession interface {
	// Handle is the portal's object path for the session.
	Handle() string
	// NodeID is the PipeWire node carrying the video stream.
	NodeID() uint32
	// RemoteFD is a PipeWire remote connected for this session, or -1.
	RemoteFD() int
	Close() error
}

// Portal negotiates screencast sessions.
type Portal interface {
	Negotiate(ctx context.Context, target Target) (PortalSession, error)
}

// StreamClient attaches to a portal session's media stream. Connect blocks
// until a pixel format has been agreed on and returns it. onBuffer runs on
// the client's streaming thread; the Surface is valid only for the call.
// SetActive must not block: it queues the change on the client's own loop.
type StreamClient interface {
	Connect(session PortalSession, formats []PixelFormat, onBuffer func(Surface), onError func(error)) (PixelFormat, error)
	SetActive(active bool) error
	Close() error
}

// StillCapturer takes one screenshot of its target per call.
type StillCapturer interface {
	CaptureImage() (*image.RGBA, error)
	Close() error
}
