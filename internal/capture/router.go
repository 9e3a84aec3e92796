// Package capture selects and constructs the recorder backend for the
// running platform.
package capture

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

// constructor builds one backend variant. Platform files register the
// variants they support.
type constructor func(ctx context.Context, pctx *platform.Context, target recorder.Target, cfg config.Config, opts recorder.Options) (*recorder.Recorder, <-chan recorder.Frame, error)

var constructors = map[recorder.Kind]constructor{}

func register(kind recorder.Kind, fn constructor) {
	constructors[kind] = fn
}

// Supported lists the backends compiled into this binary
func Supported() []recorder.Kind {
	var kinds []recorder.Kind
	for _, k := range []recorder.Kind{recorder.KindDuplication, recorder.KindPush, recorder.KindPortal, recorder.KindRaw} {
		if _, ok := constructors[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// NewVideoRecorder picks the backend once from cfg.Recorder.Backend and
// the session type, then constructs it. The returned recorder is stopped.
func NewVideoRecorder(ctx context.Context, pctx *platform.Context, target recorder.Target, cfg config.Config) (*recorder.Recorder, <-chan recorder.Frame, error) {
	log := logger.WithComponent("capture-router")

	kind, err := selectKind(cfg.Recorder.Backend, pctx.SessionType())
	if err != nil {
		return nil, nil, err
	}
	build, ok := constructors[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s backend not available on this platform", recorder.ErrUnsupported, kind)
	}

	log.Info().
		Str("backend", kind.String()).
		Str("session", string(pctx.SessionType())).
		Int("monitor", target.Monitor).
		Uint32("window_id", target.WindowID).
		Msg("Creating recorder")

	rec, frames, err := build(ctx, pctx, target, cfg, Options(cfg.Recorder, kind))
	if err != nil {
		return nil, nil, fmt.Errorf("%s recorder: %w", kind, err)
	}
	return rec, frames, nil
}

// selectKind resolves the configured backend name. "auto" maps the
// session type to its native backend.
func selectKind(backend string, session platform.SessionType) (recorder.Kind, error) {
	if name := strings.TrimSpace(backend); name != "" && !strings.EqualFold(name, "auto") {
		return recorder.ParseKind(name)
	}
	switch session {
	case platform.SessionWindows:
		return recorder.KindDuplication, nil
	case platform.SessionDarwin:
		return recorder.KindPush, nil
	case platform.SessionWayland:
		return recorder.KindPortal, nil
	case platform.SessionX11:
		return recorder.KindRaw, nil
	}
	return 0, fmt.Errorf("%w: no graphical session detected", recorder.ErrUnsupported)
}

// Options maps recorder configuration to producer options. Pollers use
// the poll buffer; callback driven backends use the push buffer.
func Options(cfg config.RecorderConfig, kind recorder.Kind) recorder.Options {
	opts := recorder.Options{
		Buffer:                 cfg.PollBuffer,
		AcquireTimeout:         cfg.AcquireTimeout,
		RetryDelay:             cfg.RetryDelay,
		PollInterval:           cfg.PollInterval,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}
	if kind == recorder.KindPush || kind == recorder.KindPortal {
		opts.Buffer = cfg.PushBuffer
	}
	return opts
}

// TargetFromConfig builds the capture target from recorder configuration
func TargetFromConfig(cfg config.RecorderConfig) recorder.Target {
	t := recorder.Target{
		Monitor:  cfg.Monitor,
		WindowID: cfg.WindowID,
	}
	if r := cfg.Region; r.Width > 0 && r.Height > 0 {
		t.Region = image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
	}
	return t
}
