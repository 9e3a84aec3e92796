//go:build !windows && !darwin

package capture

import (
	"context"

	"github.com/bryanchriswhite/FrameTap/internal/capture/x11"
	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func init() {
	register(recorder.KindRaw, newRaw)
}

func newRaw(ctx context.Context, pctx *platform.Context, target recorder.Target, cfg config.Config, opts recorder.Options) (*recorder.Recorder, <-chan recorder.Frame, error) {
	conn, err := pctx.X11()
	if err != nil {
		return nil, nil, err
	}
	capturer, err := x11.NewCapturer(conn, target)
	if err != nil {
		return nil, nil, err
	}
	return recorder.NewRawRecorder(capturer, opts)
}
