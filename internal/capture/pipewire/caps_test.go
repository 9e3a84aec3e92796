package pipewire

import (
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func TestParseCaps(t *testing.T) {
	line := `/GstPipeline:pipeline0/GstFdSink:fdsink0.GstPad:sink: caps = video/x-raw, format=(string)BGRx, width=(int)2560, height=(int)1440, framerate=(fraction)0/1`
	caps, ok := parseCaps(line)
	if !ok {
		t.Fatal("failed to parse caps")
	}
	if caps.Format != recorder.FormatBGRx || caps.Width != 2560 || caps.Height != 1440 {
		t.Errorf("caps = %+v", caps)
	}

	if _, ok := parseCaps("video/x-raw, format=(string)I420, width=(int)2, height=(int)2"); ok {
		t.Error("unsupported format should not parse")
	}
	if _, ok := parseCaps("audio/x-raw, rate=(int)48000"); ok {
		t.Error("non-video caps should not parse")
	}
	if _, ok := parseCaps("video/x-raw, format=(string)RGBA"); ok {
		t.Error("caps without size should not parse")
	}
}

func TestExtractIntFromCaps(t *testing.T) {
	tests := []struct {
		caps string
		key  string
		want int
	}{
		{"width=(int)1920, height=(int)1080", "width", 1920},
		{"width=(int)1920, height=(int)1080", "height", 1080},
		{"width=800", "width", 800},
		{"height=(int)1080", "width", 0},
	}
	for _, tt := range tests {
		if got := extractIntFromCaps(tt.caps, tt.key); got != tt.want {
			t.Errorf("extractIntFromCaps(%q, %q) = %d, want %d", tt.caps, tt.key, got, tt.want)
		}
	}
}

func TestCapsFilterHasNoSpaces(t *testing.T) {
	f := capsFilter(recorder.StreamFormats, StreamOptions{}.withDefaults())
	if strings.ContainsAny(f, " \t") {
		t.Errorf("caps filter %q contains whitespace", f)
	}
	for _, format := range recorder.StreamFormats {
		if !strings.Contains(f, format.String()) {
			t.Errorf("caps filter %q is missing %s", f, format)
		}
	}
	if !strings.Contains(f, "[1,4096]") || !strings.Contains(f, "24/1") {
		t.Errorf("caps filter %q does not carry the default limits", f)
	}
}

func TestPipelineDesc(t *testing.T) {
	d := pipelineDesc(3, 57, "video/x-raw", "fdsink fd=4")
	if !strings.HasPrefix(d, "pipewiresrc fd=3 path=57 ") {
		t.Errorf("desc = %q", d)
	}
	if !strings.HasSuffix(d, " ! video/x-raw ! fdsink fd=4") {
		t.Errorf("desc = %q", d)
	}
	if d := pipelineDesc(-1, 9, "c", "s"); strings.Contains(d, "fd=") {
		t.Errorf("desc without remote = %q", d)
	}
}

func TestStride(t *testing.T) {
	if s := defaultStride(recorder.FormatRGB, 3); s != 12 {
		t.Errorf("RGB width 3 stride = %d, want 12", s)
	}
	if s := defaultStride(recorder.FormatBGRx, 3); s != 12 {
		t.Errorf("BGRx width 3 stride = %d, want 12", s)
	}
	if s := strideFor(recorder.FormatBGRx, 100, 10, 4096*10); s != 4096 {
		t.Errorf("padded stride = %d, want 4096", s)
	}
	if s := strideFor(recorder.FormatBGRx, 100, 10, 333); s != 400 {
		t.Errorf("fallback stride = %d, want 400", s)
	}
}

func TestStreamOptionsDefaults(t *testing.T) {
	o := StreamOptions{MaxWidth: 800}.withDefaults()
	if o.MaxWidth != 800 || o.MaxHeight != 4096 || o.Framerate != 24 || o.NegotiateTimeout != 5*time.Second {
		t.Errorf("defaults = %+v", o)
	}
}
