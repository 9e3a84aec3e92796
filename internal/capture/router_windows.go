//go:build windows

package capture

import (
	"context"

	"github.com/bryanchriswhite/FrameTap/internal/capture/dxgi"
	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func init() {
	register(recorder.KindDuplication, newDuplication)
}

func newDuplication(ctx context.Context, pctx *platform.Context, target recorder.Target, cfg config.Config, opts recorder.Options) (*recorder.Recorder, <-chan recorder.Frame, error) {
	dup, err := dxgi.NewDuplicator(target.Monitor)
	if err != nil {
		return nil, nil, err
	}
	return recorder.NewDuplicationRecorder(dup, opts)
}
