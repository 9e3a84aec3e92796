//go:build darwin

package capture

import (
	"context"

	"github.com/bryanchriswhite/FrameTap/internal/capture/sck"
	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func init() {
	register(recorder.KindPush, newPush)
}

func newPush(ctx context.Context, pctx *platform.Context, target recorder.Target, cfg config.Config, opts recorder.Options) (*recorder.Recorder, <-chan recorder.Frame, error) {
	session, err := sck.NewSession(target, cfg.Stream.Framerate)
	if err != nil {
		return nil, nil, err
	}
	return recorder.NewPushRecorder(session, opts)
}
