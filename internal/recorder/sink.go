package recorder

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// sink is the producer side of the frame channel. Pollers use send, which
// waits for the consumer; callback backends use offer, which never waits.
// close may race with either and is safe to call more than once.
type sink struct {
	ch   chan Frame
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	err    error

	once    sync.Once
	sent    atomic.Uint64
	dropped atomic.Uint64
	log     *zerolog.Logger
}

func newSink(capacity int, log *zerolog.Logger) *sink {
	if capacity < 0 {
		capacity = 0
	}
	return &sink{
		ch:   make(chan Frame, capacity),
		done: make(chan struct{}),
		log:  log,
	}
}

// send hands f to the consumer, blocking until it is taken. It returns
// false once the channel is closed.
func (s *sink) send(f Frame) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- f:
		s.sent.Add(1)
		return true
	case <-s.done:
		return false
	}
}

// offer hands f to the consumer only if that can happen right now. A
// refused frame is dropped.
func (s *sink) offer(f Frame) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- f:
		s.sent.Add(1)
		return true
	default:
		n := s.dropped.Add(1)
		s.log.Debug().
			Uint32("width", f.Width).
			Uint32("height", f.Height).
			Uint64("dropped", n).
			Msg("Consumer not ready, dropping frame")
		return false
	}
}

// close shuts the channel. err, when non-nil, is reported by Err and
// OnFrame as the reason the producer stopped. Only the first call counts.
func (s *sink) close(err error) {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		s.err = err
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *sink) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
