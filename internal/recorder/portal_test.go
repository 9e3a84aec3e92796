package recorder

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPortalControlMessages(t *testing.T) {
	session := &fakePortalSession{handle: "/org/freedesktop/portal/desktop/session/1_42/ft1", node: 77}
	stream := newFakeStream(FormatRGB, 8, 8)
	r, frames, err := NewPortalRecorder(testContext(t), &fakePortal{session: session}, stream, Target{}, fastOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.SessionID() != session.handle {
		t.Fatalf("SessionID = %q", r.SessionID())
	}

	r.Start()
	r.Start()
	if n := stream.activates.Load(); n != 1 {
		t.Fatalf("%d activate messages for two Starts", n)
	}
	f, _ := recvFrame(t, frames, time.Second)
	checkOpaque(t, f)

	r.Stop()
	r.Stop()
	if n := stream.pauses.Load(); n != 1 {
		t.Fatalf("%d pause messages for two Stops", n)
	}

	deadline := time.Now().Add(time.Second)
	for stream.flushes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never flushed on pause")
		}
		time.Sleep(time.Millisecond)
	}
	drainInFlight(frames, KindPortal)
	expectNoFrame(t, frames, 20*time.Millisecond)

	r.Start()
	recvFrame(t, frames, time.Second)

	r.Close()
	if !stream.closed.Load() || !session.closed.Load() {
		t.Fatal("stream or session left open after Close")
	}
}

func TestPortalFormats(t *testing.T) {
	for _, format := range StreamFormats {
		t.Run(format.String(), func(t *testing.T) {
			stream := newFakeStream(format, 5, 3)
			portal := &fakePortal{session: &fakePortalSession{handle: "/s", node: 1}}
			r, frames, err := NewPortalRecorder(testContext(t), portal, stream, Target{}, fastOptions())
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			r.Start()
			f, _ := recvFrame(t, frames, time.Second)
			checkOpaque(t, f)
			if f.Width != 5 || f.Height != 3 {
				t.Fatalf("frame %dx%d", f.Width, f.Height)
			}
		})
	}
}

func TestPortalNoCommonFormat(t *testing.T) {
	session := &fakePortalSession{handle: "/s", node: 1}
	stream := newFakeStream(FormatBGRA, 4, 4)
	_, _, err := NewPortalRecorder(testContext(t), &fakePortal{session: session}, stream, Target{}, fastOptions())
	if !errors.Is(err, ErrNoCommonFormat) {
		t.Fatalf("err = %v, want ErrNoCommonFormat", err)
	}
	if !session.closed.Load() || !stream.closed.Load() {
		t.Fatal("resources leaked after failed setup")
	}
}

func TestPortalNegotiationFailure(t *testing.T) {
	stream := newFakeStream(FormatRGBA, 4, 4)
	_, _, err := NewPortalRecorder(testContext(t), &fakePortal{err: ErrPermissionDenied}, stream, Target{}, fastOptions())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if !stream.closed.Load() {
		t.Fatal("stream client not closed")
	}

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	portal := &fakePortal{session: &fakePortalSession{handle: "/s"}}
	_, _, err = NewPortalRecorder(ctx, portal, newFakeStream(FormatRGBA, 4, 4), Target{}, fastOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPortalStreamErrorIsFatal(t *testing.T) {
	stream := newFakeStream(FormatRGBx, 4, 4)
	portal := &fakePortal{session: &fakePortalSession{handle: "/s", node: 3}}
	r, frames, err := NewPortalRecorder(testContext(t), portal, stream, Target{}, fastOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	stream.onError(errors.New("session closed by compositor"))
	if _, ok := recvFrame(t, frames, time.Second); ok {
		t.Fatal("frame after stream error")
	}
	if !IsFatal(r.Err()) {
		t.Fatalf("Err = %v", r.Err())
	}
}

func TestPortalFailedPauseKeepsDelivering(t *testing.T) {
	session := &fakePortalSession{handle: "/org/freedesktop/portal/desktop/session/1_42/ft2", node: 78}
	stream := newFakeStream(FormatRGBx, 4, 4)
	stream.failPauses.Store(1)
	r, frames, err := NewPortalRecorder(testContext(t), &fakePortal{session: session}, stream, Target{}, fastOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	recvFrame(t, frames, time.Second)

	if err := r.Stop(); err == nil {
		t.Fatal("Stop succeeded although the stream refused to pause")
	}
	if !r.Running() {
		t.Fatal("Running = false after a failed Stop")
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start after failed Stop: %v", err)
	}
	if _, ok := recvFrame(t, frames, time.Second); !ok {
		t.Fatal("no frame although Running() = true")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if r.Running() {
		t.Fatal("still running after successful Stop")
	}
}
