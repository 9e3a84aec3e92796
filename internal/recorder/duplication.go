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

// duplicationBackend polls a GPU output duplication interface from its own
// goroutine while the gate is open.
type duplicationBackend struct {
	dup    Duplicator
	gate   *Gate
	sink   *sink
	opts   Options
	policy *failurePolicy
	done   chan struct{}
	wg     sync.WaitGroup
	log    *zerolog.Logger
}

// NewDuplicationRecorder starts a duplication poller over dup. The poller
// idles until Start. The recorder owns dup and closes it on Close.
func NewDuplicationRecorder(dup Duplicator, opts Options) (*Recorder, <-chan Frame, error) {
	if dup == nil {
		return nil, nil, errors.New("duplication recorder: nil duplicator")
	}
	opts = opts.withDefaults()
	log := logger.WithComponent("duplication")

	b := &duplicationBackend{
		dup:    dup,
		gate:   NewGate(),
		sink:   newSink(opts.Buffer, log),
		opts:   opts,
		policy: newFailurePolicy(opts.MaxConsecutiveFailures),
		done:   make(chan struct{}),
		log:    log,
	}

	b.wg.Add(1)
	go b.run()

	r := newRecorder(b, b.sink, uuid.NewString())
	return r, r.Frames(), nil
}

func (b *duplicationBackend) kind() Kind { return KindDuplication }

func (b *duplicationBackend) arm() error {
	b.gate.Wake()
	return nil
}

func (b *duplicationBackend) disarm() error {
	b.gate.Sleep()
	return nil
}

func (b *duplicationBackend) release() error {
	close(b.done)
	b.gate.Terminate()
	b.wg.Wait()
	return b.dup.Close()
}

func (b *duplicationBackend) run() {
	defer b.wg.Done()

	for b.gate.Wait() {
		frame, ok, err := b.next()
		if err != nil {
			if b.policy.fail(err) {
				b.log.Error().Err(err).
					Int64("consecutive_failures", b.policy.count()).
					Msg("Duplication failed, stopping producer")
				b.sink.close(Fatal(err))
				return
			}
			b.log.Debug().Err(err).Msg("Duplication error, retrying")
			if !b.pause(b.opts.RetryDelay) {
				return
			}
			continue
		}
		if !ok {
			continue
		}

		b.policy.reset()
		if !b.sink.send(frame) {
			return
		}
	}
}

// next acquires one frame. It returns ok=false when nothing new was
// presented before the timeout.
func (b *duplicationBackend) next() (Frame, bool, error) {
	info, err := b.dup.AcquireNextFrame(b.opts.AcquireTimeout)
	if errors.Is(err, ErrAcquireTimeout) {
		_ = b.dup.ReleaseFrame()
		return Frame{}, false, nil
	}
	if err != nil {
		return Frame{}, false, fmt.Errorf("acquire frame: %w", err)
	}

	if info.LastPresentTime == 0 {
		if err := b.dup.ReleaseFrame(); err != nil {
			return Frame{}, false, fmt.Errorf("release stale frame: %w", err)
		}
		return Frame{}, false, nil
	}

	surface, err := b.dup.MapFrame()
	if err != nil {
		_ = b.dup.ReleaseFrame()
		return Frame{}, false, fmt.Errorf("map frame: %w", err)
	}

	frame, decodeErr := Decode(surface)
	b.dup.UnmapFrame()
	releaseErr := b.dup.ReleaseFrame()

	if decodeErr != nil {
		return Frame{}, false, decodeErr
	}
	if releaseErr != nil {
		return Frame{}, false, fmt.Errorf("release frame: %w", releaseErr)
	}
	return frame, true, nil
}

// pause sleeps for d unless the recorder is being closed.
func (b *duplicationBackend) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-b.done:
		return false
	}
}
