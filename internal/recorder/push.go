package recorder

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// pushBackend forwards frames a CaptureSession pushes from an OS thread.
// Stopping disarms the callback; the session itself keeps running so a
// later Start resumes on the next compositor frame.
type pushBackend struct {
	session CaptureSession
	format  PixelFormat
	armed   atomic.Bool
	sink    *sink
	policy  *failurePolicy
	log     *zerolog.Logger
}

// NewPushRecorder starts session and wires its callback to a new
// recorder. Frames are dropped, not queued, while the consumer is busy.
// On error session is closed.
func NewPushRecorder(session CaptureSession, opts Options) (*Recorder, <-chan Frame, error) {
	if session == nil {
		return nil, nil, errors.New("push recorder: nil session")
	}
	opts = opts.withDefaults()
	log := logger.WithComponent("push")

	b := &pushBackend{
		session: session,
		format:  session.Format(),
		sink:    newSink(opts.Buffer, log),
		policy:  newFailurePolicy(opts.MaxConsecutiveFailures),
		log:     log,
	}

	if err := session.Start(b.onBuffer, b.onStop); err != nil {
		_ = session.Close()
		return nil, nil, fmt.Errorf("start capture session: %w", err)
	}
	log.Info().Str("format", b.format.String()).Msg("Capture session running")

	r := newRecorder(b, b.sink, uuid.NewString())
	return r, r.Frames(), nil
}

func (b *pushBackend) kind() Kind { return KindPush }

func (b *pushBackend) arm() error {
	b.armed.Store(true)
	return nil
}

func (b *pushBackend) disarm() error {
	b.armed.Store(false)
	return nil
}

func (b *pushBackend) release() error {
	b.armed.Store(false)
	return b.session.Close()
}

func (b *pushBackend) onBuffer(buf PixelBuffer) {
	if !b.armed.Load() {
		return
	}

	surface, err := buf.Lock()
	if err != nil {
		b.fail(fmt.Errorf("lock pixel buffer: %w", err))
		return
	}
	if surface.Format != b.format {
		buf.Unlock()
		b.log.Warn().
			Str("want", b.format.String()).
			Str("got", surface.Format.String()).
			Msg("Skipping buffer with unexpected pixel format")
		b.fail(fmt.Errorf("%w: unexpected pixel format %v", ErrFormatMismatch, surface.Format))
		return
	}
	frame, err := Decode(surface)
	buf.Unlock()
	if err != nil {
		b.fail(err)
		return
	}

	b.policy.reset()
	b.sink.offer(frame)
}

func (b *pushBackend) onStop(err error) {
	if err == nil {
		err = errors.New("capture session stopped")
	}
	b.log.Error().Err(err).Msg("Capture session ended by the system")
	b.sink.close(Fatal(err))
}

func (b *pushBackend) fail(err error) {
	if b.policy.fail(err) {
		b.log.Error().Err(err).Msg("Too many bad buffers, closing recorder channel")
		b.sink.close(Fatal(err))
		return
	}
	b.log.Debug().Err(err).Msg("Skipping buffer")
}
