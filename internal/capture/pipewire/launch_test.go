//go:build linux

package pipewire

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

func TestAwaitCaps(t *testing.T) {
	c := NewLaunchClient(StreamOptions{NegotiateTimeout: time.Second})
	out := strings.Join([]string{
		"Setting pipeline to PAUSED ...",
		"/GstPipeline:pipeline0/GstPipeWireSrc:pipewiresrc0.GstPad:src: caps = video/x-raw, format=(string)BGRx, width=(int)640, height=(int)480",
		"/GstPipeline:pipeline0/GstFdSink:fdsink0.GstPad:sink: caps = video/x-raw, format=(string)RGBx, width=(int)320, height=(int)240",
	}, "\n")

	caps, err := c.awaitCaps(strings.NewReader(out), 4)
	if err != nil {
		t.Fatal(err)
	}
	if caps.Format != recorder.FormatRGBx || caps.Width != 320 || caps.Height != 240 {
		t.Errorf("caps = %+v, want the fdsink caps", caps)
	}
}

func TestAwaitCapsTimeout(t *testing.T) {
	c := NewLaunchClient(StreamOptions{NegotiateTimeout: 20 * time.Millisecond})
	r, w := io.Pipe()
	defer w.Close()
	if _, err := c.awaitCaps(r, 4); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestLaunchClientDelivery(t *testing.T) {
	c := NewLaunchClient(StreamOptions{})
	r, w := io.Pipe()

	surfaces := make(chan recorder.Surface, 4)
	errs := make(chan error, 1)
	caps := Caps{Format: recorder.FormatRGBx, Width: 2, Height: 2}
	c.run(r, caps, func(s recorder.Surface) { surfaces <- s }, func(err error) { errs <- err })

	if err := c.SetActive(true); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	frame := make([]byte, 16)
	for i := range frame {
		frame[i] = byte(i)
	}
	if _, err := w.Write(frame); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-surfaces:
		if s.Width != 2 || s.Height != 2 || s.Stride != 8 || s.Format != recorder.FormatRGBx {
			t.Errorf("surface = %dx%d stride %d %v", s.Width, s.Height, s.Stride, s.Format)
		}
		if s.Pix[5] != 5 {
			t.Errorf("pix[5] = %d", s.Pix[5])
		}
	case <-time.After(time.Second):
		t.Fatal("no surface delivered")
	}

	w.Close()
	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected stream end error")
		}
	case <-time.After(time.Second):
		t.Fatal("stream end not reported")
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetActive(true); err != recorder.ErrClosed {
		t.Errorf("SetActive after close = %v, want ErrClosed", err)
	}
}

func TestLaunchClientPausedDropsFrames(t *testing.T) {
	c := NewLaunchClient(StreamOptions{})
	r, w := io.Pipe()
	defer w.Close()

	surfaces := make(chan recorder.Surface, 4)
	c.run(r, Caps{Format: recorder.FormatRGB, Width: 4, Height: 1},
		func(s recorder.Surface) { surfaces <- s }, func(error) {})

	// Inactive by default
	if _, err := w.Write(make([]byte, 12)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-surfaces:
		t.Fatal("frame delivered while paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.Close()
}
