package recorder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/rs/zerolog"
)

// portalBackend forwards frames from a media stream negotiated through a
// desktop portal. Pause and resume are queued onto the stream client's
// loop, which flushes buffered frames on pause.
type portalBackend struct {
	session PortalSession
	client  StreamClient
	format  PixelFormat
	armed   atomic.Bool
	sink    *sink
	policy  *failurePolicy
	log     *zerolog.Logger
}

// NewPortalRecorder negotiates a screencast session for target and
// connects client to it. It blocks until both steps finish or ctx is
// done. The recorder owns portal's session and client; both are closed
// if construction fails.
func NewPortalRecorder(ctx context.Context, portal Portal, client StreamClient, target Target, opts Options) (*Recorder, <-chan Frame, error) {
	if portal == nil || client == nil {
		return nil, nil, errors.New("portal recorder: nil portal or stream client")
	}
	opts = opts.withDefaults()
	log := logger.WithComponent("portal")

	session, err := portal.Negotiate(ctx, target)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("negotiate screencast session: %w", err)
	}
	log.Info().
		Str("session", session.Handle()).
		Uint32("node_id", session.NodeID()).
		Msg("Screencast session negotiated")

	b := &portalBackend{
		session: session,
		client:  client,
		sink:    newSink(opts.Buffer, log),
		policy:  newFailurePolicy(opts.MaxConsecutiveFailures),
		log:     log,
	}

	format, err := client.Connect(session, StreamFormats, b.onBuffer, b.onError)
	if err == nil && !slices.Contains(StreamFormats, format) {
		err = fmt.Errorf("%w: stream negotiated %v", ErrNoCommonFormat, format)
	}
	if err != nil {
		_ = client.Close()
		_ = session.Close()
		return nil, nil, fmt.Errorf("connect stream %d: %w", session.NodeID(), err)
	}
	b.format = format
	log.Info().Str("format", format.String()).Msg("Stream connected")

	id := session.Handle()
	if id == "" {
		id = strconv.FormatUint(uint64(session.NodeID()), 10)
	}
	r := newRecorder(b, b.sink, id)
	return r, r.Frames(), nil
}

func (b *portalBackend) kind() Kind { return KindPortal }

func (b *portalBackend) arm() error {
	if !b.armed.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.client.SetActive(true); err != nil {
		b.armed.Store(false)
		return err
	}
	return nil
}

func (b *portalBackend) disarm() error {
	if !b.armed.CompareAndSwap(true, false) {
		return nil
	}
	if err := b.client.SetActive(false); err != nil {
		b.armed.Store(true)
		return err
	}
	return nil
}

func (b *portalBackend) release() error {
	b.armed.Store(false)
	return errors.Join(b.client.Close(), b.session.Close())
}

func (b *portalBackend) onBuffer(s Surface) {
	if !b.armed.Load() {
		return
	}
	if s.Format != b.format {
		b.fail(fmt.Errorf("%w: buffer format %v, negotiated %v", ErrFormatMismatch, s.Format, b.format))
		return
	}
	frame, err := Decode(s)
	if err != nil {
		b.fail(err)
		return
	}
	b.policy.reset()
	b.sink.offer(frame)
}

func (b *portalBackend) onError(err error) {
	b.log.Error().Err(err).Str("session", b.session.Handle()).Msg("Stream failed")
	b.sink.close(Fatal(err))
}

func (b *portalBackend) fail(err error) {
	if b.policy.fail(err) {
		b.log.Error().Err(err).Msg("Too many bad buffers, closing recorder channel")
		b.sink.close(Fatal(err))
		return
	}
	b.log.Debug().Err(err).Msg("Skipping buffer")
}
