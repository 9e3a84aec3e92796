//go:build linux && !cgo

package pipewire

import (
	"fmt"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

// GstClient is unavailable without cgo; use LaunchClient instead.
type GstClient struct {
	*LaunchClient
}

// NewGstClient reports that the in-process client needs cgo
func NewGstClient(opts StreamOptions) (*GstClient, error) {
	return nil, fmt.Errorf("%w: in-process GStreamer client requires cgo", recorder.ErrUnsupported)
}
