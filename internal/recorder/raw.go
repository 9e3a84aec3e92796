package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// rawBackend repeatedly takes screenshots with a StillCapturer. It is the
// fallback where the windowing system has no streaming API.
type rawBackend struct {
	capturer StillCapturer
	gate     *Gate
	sink     *sink
	opts     Options
	policy   *failurePolicy
	done     chan struct{}
	wg       sync.WaitGroup
	log      *zerolog.Logger
}

// NewRawRecorder starts a raw poller over capturer. The recorder owns
// capturer and closes it on Close.
func NewRawRecorder(capturer StillCapturer, opts Options) (*Recorder, <-chan Frame, error) {
	if capturer == nil {
		return nil, nil, errors.New("raw recorder: nil capturer")
	}
	opts = opts.withDefaults()
	log := logger.WithComponent("raw-poller")

	b := &rawBackend{
		capturer: capturer,
		gate:     NewGate(),
		sink:     newSink(opts.Buffer, log),
		opts:     opts,
		policy:   newFailurePolicy(opts.MaxConsecutiveFailures),
		done:     make(chan struct{}),
		log:      log,
	}

	b.wg.Add(1)
	go b.run()

	r := newRecorder(b, b.sink, uuid.NewString())
	return r, r.Frames(), nil
}

func (b *rawBackend) kind() Kind { return KindRaw }

func (b *rawBackend) arm() error {
	b.gate.Wake()
	return nil
}

func (b *rawBackend) disarm() error {
	b.gate.Sleep()
	return nil
}

func (b *rawBackend) release() error {
	close(b.done)
	b.gate.Terminate()
	b.wg.Wait()
	return b.capturer.Close()
}

func (b *rawBackend) run() {
	defer b.wg.Done()

	for b.gate.Wait() {
		frame, err := b.capture()
		if err != nil {
			if b.policy.fail(err) {
				b.log.Error().Err(err).
					Int64("consecutive_failures", b.policy.count()).
					Msg("Capture keeps failing, stopping producer")
				b.sink.close(Fatal(err))
				return
			}
			b.log.Debug().Err(err).Msg("Capture failed, retrying")
			if !b.pause(b.opts.RetryDelay) {
				return
			}
			continue
		}

		b.policy.reset()
		if !b.sink.send(frame) {
			return
		}
		if !b.pause(b.opts.PollInterval) {
			return
		}
	}
}

func (b *rawBackend) capture() (Frame, error) {
	img, err := b.capturer.CaptureImage()
	if err != nil {
		return Frame{}, fmt.Errorf("capture image: %w", err)
	}
	return FrameFromImage(img)
}

func (b *rawBackend) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-b.done:
		return false
	}
}
