//go:build darwin && cgo

package sck

/*
#cgo CFLAGS: -x objective-c -fobjc-arc -mmacosx-version-min=12.3
#cgo LDFLAGS: -framework ScreenCaptureKit -framework CoreMedia -framework CoreVideo -framework Foundation

#include <stdint.h>
#include <stdlib.h>
#include "sck_darwin.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/rs/zerolog"
)

// Session is a ScreenCaptureKit stream of one display or window. Buffers
// are always 32BGRA.
type Session struct {
	c      C.ft_sck_session
	handle cgo.Handle

	mu       sync.RWMutex
	onBuffer func(recorder.PixelBuffer)
	onStop   func(error)
	started  bool
	closed   bool

	log *zerolog.Logger
}

// NewSession resolves target to a display (by index) or window and
// creates a stopped stream for it
func NewSession(target recorder.Target, fps int) (*Session, error) {
	s := &Session{log: logger.WithComponent("sck")}
	s.handle = cgo.NewHandle(s)

	ret := C.ft_sck_open(C.int(target.Monitor), C.uint32_t(target.WindowID), C.int(fps), C.uintptr_t(s.handle), &s.c)
	if ret != C.FT_SCK_OK {
		s.handle.Delete()
		return nil, openError(int(ret), target)
	}

	s.log.Info().
		Int("display", target.Monitor).
		Uint32("window_id", target.WindowID).
		Int("width", int(s.c.width)).
		Int("height", int(s.c.height)).
		Msg("ScreenCaptureKit stream created")
	return s, nil
}

func openError(code int, target recorder.Target) error {
	switch code {
	case C.FT_SCK_NOT_FOUND:
		if target.WindowID != 0 {
			return fmt.Errorf("%w: window %d", recorder.ErrTargetNotFound, target.WindowID)
		}
		return fmt.Errorf("%w: display %d", recorder.ErrTargetNotFound, target.Monitor)
	case C.FT_SCK_DENIED:
		return fmt.Errorf("%w: screen recording not allowed", recorder.ErrPermissionDenied)
	case C.FT_SCK_NO_CONTENT:
		return fmt.Errorf("%w: no shareable content (is screen recording permitted?)", recorder.ErrPermissionDenied)
	}
	return fmt.Errorf("ScreenCaptureKit setup failed (code %d)", code)
}

// Format reports the stream pixel format
func (s *Session) Format() recorder.PixelFormat { return recorder.FormatBGRA }

// Start begins delivery to onBuffer on the stream's dispatch queue
func (s *Session) Start(onBuffer func(recorder.PixelBuffer), onStop func(error)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return recorder.ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("sck: session already started")
	}
	s.onBuffer = onBuffer
	s.onStop = onStop
	s.started = true
	s.mu.Unlock()

	if ret := C.ft_sck_start(&s.c); ret != C.FT_SCK_OK {
		if ret == C.FT_SCK_DENIED {
			return fmt.Errorf("%w: capture start declined", recorder.ErrPermissionDenied)
		}
		return fmt.Errorf("ScreenCaptureKit start failed (code %d)", int(ret))
	}
	return nil
}

// Close stops the stream. No callback runs after it returns.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Outside the lock: the output queue may be blocked in a callback
	// waiting for a read lock
	C.ft_sck_close(&s.c)
	s.handle.Delete()
	s.log.Debug().Msg("ScreenCaptureKit stream stopped")
	return nil
}

func (s *Session) deliver(pb unsafe.Pointer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.onBuffer == nil {
		return
	}
	s.onBuffer(&pixelBuffer{ref: pb})
}

func (s *Session) stopped(err error) {
	s.mu.RLock()
	onStop := s.onStop
	closed := s.closed
	s.mu.RUnlock()
	if closed || onStop == nil {
		return
	}
	s.log.Warn().Err(err).Msg("ScreenCaptureKit stream stopped by the system")
	onStop(err)
}

// pixelBuffer is a CVPixelBuffer valid for the duration of one callback
type pixelBuffer struct {
	ref    unsafe.Pointer
	locked bool
}

func (p *pixelBuffer) Lock() (recorder.Surface, error) {
	var base *C.uint8_t
	var stride, w, h C.int
	if C.ft_pixel_lock(p.ref, &base, &stride, &w, &h) != 0 {
		return recorder.Surface{}, fmt.Errorf("%w: CVPixelBufferLockBaseAddress failed", recorder.ErrFrameSize)
	}
	p.locked = true
	return recorder.Surface{
		Width:  int(w),
		Height: int(h),
		Stride: int(stride),
		Format: recorder.FormatBGRA,
		Pix:    unsafe.Slice((*byte)(unsafe.Pointer(base)), int(stride)*int(h)),
	}, nil
}

func (p *pixelBuffer) Unlock() {
	if p.locked {
		C.ft_pixel_unlock(p.ref)
		p.locked = false
	}
}

//export ftSCKOnBuffer
func ftSCKOnBuffer(handle C.uintptr_t, pb unsafe.Pointer) {
	s, ok := cgo.Handle(handle).Value().(*Session)
	if !ok {
		return
	}
	s.deliver(pb)
}

//export ftSCKOnStop
func ftSCKOnStop(handle C.uintptr_t, code C.int, msg *C.char) {
	s, ok := cgo.Handle(handle).Value().(*Session)
	if !ok {
		return
	}
	s.stopped(recorder.Fatal(fmt.Errorf("stream stopped (code %d): %s", int(code), C.GoString(msg))))
}
