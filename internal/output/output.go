package output

import (
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

// Output is a destination for recorded frames
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame recorder.Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types. Zero Width and
// Height keep the source size; a single zero dimension keeps the aspect
// ratio.
type Config struct {
	Width   int
	Height  int
	Quality int
}

// Consume writes every frame from frames to out until the channel closes.
// Write errors are returned immediately.
func Consume(frames <-chan recorder.Frame, out Output) error {
	for f := range frames {
		if err := out.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}
