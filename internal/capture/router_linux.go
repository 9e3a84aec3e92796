//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FrameTap/internal/capture/pipewire"
	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func init() {
	register(recorder.KindPortal, newPortal)
}

func newPortal(ctx context.Context, pctx *platform.Context, target recorder.Target, cfg config.Config, opts recorder.Options) (*recorder.Recorder, <-chan recorder.Frame, error) {
	bus, err := pctx.SessionBus()
	if err != nil {
		return nil, nil, err
	}
	portal, err := pipewire.NewPortal(bus, pipewire.PortalOptions{
		RequestTimeout:   cfg.Portal.RequestTimeout,
		SelectTimeout:    cfg.Portal.SelectTimeout,
		CursorMode:       cfg.Portal.CursorMode,
		PersistMode:      cfg.Portal.PersistMode,
		RestoreTokenPath: cfg.Portal.RestoreTokenPath,
	})
	if err != nil {
		return nil, nil, err
	}

	client, err := newStreamClient(cfg.Stream)
	if err != nil {
		return nil, nil, err
	}
	return recorder.NewPortalRecorder(ctx, portal, client, target, opts)
}

// newStreamClient returns the configured PipeWire stream client. The
// in-process client falls back to gst-launch when built without cgo.
func newStreamClient(cfg config.StreamConfig) (recorder.StreamClient, error) {
	opts := pipewire.StreamOptions{
		NegotiateTimeout: cfg.NegotiateTimeout,
		MaxWidth:         cfg.MaxWidth,
		MaxHeight:        cfg.MaxHeight,
		Framerate:        cfg.Framerate,
	}

	switch strings.ToLower(cfg.Client) {
	case "launch":
		return pipewire.NewLaunchClient(opts), nil
	case "", "gst":
		client, err := pipewire.NewGstClient(opts)
		if errors.Is(err, recorder.ErrUnsupported) {
			logger.WithComponent("capture-router").Warn().Err(err).Msg("Falling back to gst-launch stream client")
			return pipewire.NewLaunchClient(opts), nil
		}
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown stream client %q", cfg.Client)
}
