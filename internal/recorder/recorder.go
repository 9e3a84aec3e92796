package recorder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/rs/zerolog"
)

// Kind identifies a recorder backend.
type Kind int

const (
	KindDuplication Kind = iota + 1
	KindPush
	KindPortal
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindDuplication:
		return "duplication"
	case KindPush:
		return "push"
	case KindPortal:
		return "portal"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// ParseKind parses a backend name as used in configuration.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "duplication", "dxgi":
		return KindDuplication, nil
	case "push", "sck", "screencapturekit":
		return KindPush, nil
	case "portal", "pipewire":
		return KindPortal, nil
	case "raw", "x11":
		return KindRaw, nil
	}
	return 0, fmt.Errorf("unknown recorder backend %q", s)
}

// backend is implemented only by the four producers in this package.
type backend interface {
	kind() Kind
	arm() error
	disarm() error
	// release tears down the producer and its session. It runs after the
	// frame channel has been closed and returns once no producer code is
	// running.
	release() error
}

// Recorder controls one backend producer. Start and Stop only toggle
// delivery; the capture session lives until Close.
type Recorder struct {
	be   backend
	sink *sink
	id   string
	log  *zerolog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
}

func newRecorder(be backend, s *sink, id string) *Recorder {
	return &Recorder{
		be:   be,
		sink: s,
		id:   id,
		log:  logger.WithComponent("recorder"),
	}
}

// Start opens delivery. Starting a running recorder does nothing.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.running {
		return nil
	}
	if err := r.be.arm(); err != nil {
		return fmt.Errorf("start %s recorder: %w", r.be.kind(), err)
	}
	r.running = true
	r.log.Debug().Str("backend", r.be.kind().String()).Str("session", r.id).Msg("Recording started")
	return nil
}

// Stop pauses delivery. Stopping a stopped recorder does nothing.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if !r.running {
		return nil
	}
	if err := r.be.disarm(); err != nil {
		return fmt.Errorf("stop %s recorder: %w", r.be.kind(), err)
	}
	r.running = false
	r.log.Debug().Str("backend", r.be.kind().String()).Str("session", r.id).Msg("Recording stopped")
	return nil
}

// Running reports whether delivery is open.
func (r *Recorder) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Frames returns the frame channel. It is closed by Close or when the
// producer hits a fatal error.
func (r *Recorder) Frames() <-chan Frame {
	return r.sink.ch
}

// OnFrame drains the frame channel on the calling goroutine, calling fn
// for each frame. It returns fn's first error, the producer's fatal error,
// or nil once the channel is closed by Close.
func (r *Recorder) OnFrame(fn func(Frame) error) error {
	for f := range r.sink.ch {
		if err := fn(f); err != nil {
			return err
		}
	}
	return r.sink.Err()
}

// Err returns the fatal error that stopped the producer, if any.
func (r *Recorder) Err() error {
	return r.sink.Err()
}

// SessionID identifies the underlying capture session. It does not change
// across Stop and Start.
func (r *Recorder) SessionID() string {
	return r.id
}

// Kind returns the backend this recorder was built on.
func (r *Recorder) Kind() Kind {
	return r.be.kind()
}

// Stats returns the number of frames delivered and dropped so far.
func (r *Recorder) Stats() (sent, dropped uint64) {
	return r.sink.sent.Load(), r.sink.dropped.Load()
}

// Close stops the producer, releases the capture session and closes the
// frame channel. It returns after the producer has exited.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.running = false
	r.mu.Unlock()

	r.sink.close(nil)
	err := r.be.release()
	r.log.Debug().Str("backend", r.be.kind().String()).Str("session", r.id).Msg("Recorder closed")
	if err != nil {
		return fmt.Errorf("close %s recorder: %w", r.be.kind(), err)
	}
	return nil
}
