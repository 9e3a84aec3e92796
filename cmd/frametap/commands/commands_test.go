package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    interface{}
		wantErr bool
	}{
		{"server_port", "9090", 9090, false},
		{"server_port", "abc", nil, true},
		{"recorder.monitor", "-1", nil, true},
		{"recorder.region.x", "-20", -20, false},
		{"recorder.acquire_timeout", "250ms", 250 * time.Millisecond, false},
		{"portal.select_timeout", "five", nil, true},
		{"log_pretty", "true", true, false},
		{"recorder.backend", "x11", "raw", false},
		{"recorder.backend", "AUTO", "auto", false},
		{"recorder.backend", "vnc", nil, true},
		{"log_level", "debug", "debug", false},
		{"log_level", "loud", nil, true},
		{"portal.persist_mode", "application", "application", false},
		{"stream.client", "ffmpeg", nil, true},
		{"portal.restore_token_path", "/tmp/t.json", "/tmp/t.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseConfigValue(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func frame(w, h uint32) recorder.Frame {
	return recorder.Frame{Width: w, Height: h, Raw: make([]byte, w*h*4)}
}

func TestCollectStopsAtCount(t *testing.T) {
	frames := make(chan recorder.Frame, 5)
	for i := 0; i < 5; i++ {
		frames <- frame(4, 2)
	}

	stats, last := collect(context.Background(), frames, 3)
	if stats.Frames != 3 {
		t.Errorf("collected %d frames, want 3", stats.Frames)
	}
	if stats.Width != 4 || stats.Height != 2 {
		t.Errorf("size %dx%d, want 4x2", stats.Width, stats.Height)
	}
	if last == nil {
		t.Fatal("expected last frame")
	}
	if len(frames) != 2 {
		t.Errorf("%d frames left in channel, want 2", len(frames))
	}
}

func TestCollectStopsOnClose(t *testing.T) {
	frames := make(chan recorder.Frame, 1)
	frames <- frame(1, 1)
	close(frames)

	stats, _ := collect(context.Background(), frames, 0)
	if stats.Frames != 1 {
		t.Errorf("collected %d frames, want 1", stats.Frames)
	}
}

func TestCollectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, last := collect(ctx, make(chan recorder.Frame), 10)
	if stats.Frames != 0 || last != nil {
		t.Errorf("expected nothing collected, got %d frames", stats.Frames)
	}
}

func TestRecordStatsFPS(t *testing.T) {
	s := recordStats{Frames: 30, Elapsed: 2 * time.Second}
	if s.fps() != 15 {
		t.Errorf("fps = %v, want 15", s.fps())
	}
	if (recordStats{Frames: 1}).fps() != 0 {
		t.Error("zero elapsed should report 0 fps")
	}
}

func TestWritePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := writePNG(path, frame(3, 3)); err != nil {
		t.Fatalf("writePNG: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("png is empty")
	}

	bad := recorder.Frame{Width: 3, Height: 3, Raw: make([]byte, 4)}
	if err := writePNG(filepath.Join(t.TempDir(), "bad.png"), bad); err == nil {
		t.Error("expected error for short frame")
	}
}
