//go:build darwin && !cgo

package sck

import (
	"fmt"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

// Session is unavailable without cgo
type Session struct{}

// NewSession reports that ScreenCaptureKit needs cgo
func NewSession(target recorder.Target, fps int) (*Session, error) {
	return nil, fmt.Errorf("%w: ScreenCaptureKit capture requires cgo", recorder.ErrUnsupported)
}

func (s *Session) Format() recorder.PixelFormat { return recorder.FormatBGRA }

func (s *Session) Start(onBuffer func(recorder.PixelBuffer), onStop func(error)) error {
	return recorder.ErrUnsupported
}

func (s *Session) Close() error { return nil }
