package capture

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/platform"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func TestSelectKind(t *testing.T) {
	tests := []struct {
		backend string
		session platform.SessionType
		want    recorder.Kind
		wantErr bool
	}{
		{"auto", platform.SessionWindows, recorder.KindDuplication, false},
		{"auto", platform.SessionDarwin, recorder.KindPush, false},
		{"", platform.SessionWayland, recorder.KindPortal, false},
		{"AUTO", platform.SessionX11, recorder.KindRaw, false},
		{"auto", platform.SessionUnknown, 0, true},
		{"raw", platform.SessionWayland, recorder.KindRaw, false},
		{"pipewire", platform.SessionX11, recorder.KindPortal, false},
		{"bogus", platform.SessionX11, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+string(tt.session), func(t *testing.T) {
			got, err := selectKind(tt.backend, tt.session)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("selectKind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := config.Defaults().Recorder
	cfg.PollBuffer = 3
	cfg.PushBuffer = 1
	cfg.RetryDelay = 5 * time.Millisecond

	poll := Options(cfg, recorder.KindDuplication)
	if poll.Buffer != 3 || poll.RetryDelay != 5*time.Millisecond || poll.MaxConsecutiveFailures != 100 {
		t.Errorf("poll options = %+v", poll)
	}
	if raw := Options(cfg, recorder.KindRaw); raw.Buffer != 3 {
		t.Errorf("raw buffer = %d, want 3", raw.Buffer)
	}
	for _, k := range []recorder.Kind{recorder.KindPush, recorder.KindPortal} {
		if o := Options(cfg, k); o.Buffer != 1 {
			t.Errorf("%s buffer = %d, want 1", k, o.Buffer)
		}
	}
}

func TestTargetFromConfig(t *testing.T) {
	cfg := config.RecorderConfig{Monitor: 1, WindowID: 42}
	target := TargetFromConfig(cfg)
	if target.Monitor != 1 || target.WindowID != 42 || !target.Region.Empty() {
		t.Errorf("target = %+v", target)
	}

	cfg.Region = config.Geometry{X: 10, Y: 20, Width: 300, Height: 200}
	if got := TargetFromConfig(cfg).Region; got != image.Rect(10, 20, 310, 220) {
		t.Errorf("region = %v", got)
	}
}

func TestNewVideoRecorderUnavailableBackend(t *testing.T) {
	var missing recorder.Kind
	for _, k := range []recorder.Kind{recorder.KindDuplication, recorder.KindPush, recorder.KindPortal, recorder.KindRaw} {
		if _, ok := constructors[k]; !ok {
			missing = k
			break
		}
	}
	if missing == 0 {
		t.Skip("every backend is compiled in")
	}

	cfg := config.Defaults()
	cfg.Recorder.Backend = missing.String()
	pctx := platform.New()
	defer pctx.Close()

	_, _, err := NewVideoRecorder(context.Background(), pctx, recorder.Target{}, cfg)
	if !errors.Is(err, recorder.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestSupported(t *testing.T) {
	kinds := Supported()
	if len(kinds) == 0 {
		t.Fatal("no backends compiled in")
	}
	for _, k := range kinds {
		if _, ok := constructors[k]; !ok {
			t.Errorf("%s listed but not registered", k)
		}
	}
}
