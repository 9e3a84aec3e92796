package recorder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// bgraSurface builds a padded BGRA surface filled with one color.
func bgraSurface(w, h, pad int, b, g, r byte) Surface {
	stride := w*4 + pad
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = b, g, r, 0
		}
	}
	return Surface{Width: w, Height: h, Stride: stride, Format: FormatBGRA, Pix: pix}
}

func recvFrame(t *testing.T, ch <-chan Frame, timeout time.Duration) (Frame, bool) {
	t.Helper()
	select {
	case f, ok := <-ch:
		return f, ok
	case <-time.After(timeout):
		t.Fatalf("no frame within %v", timeout)
		return Frame{}, false
	}
}

func expectNoFrame(t *testing.T, ch <-chan Frame, window time.Duration) {
	t.Helper()
	select {
	case f, ok := <-ch:
		if ok {
			t.Fatalf("unexpected %dx%d frame while stopped", f.Width, f.Height)
		}
	case <-time.After(window):
	}
}

func checkOpaque(t *testing.T, f Frame) {
	t.Helper()
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(f.Raw); i += 4 {
		if f.Raw[i] != 255 {
			t.Fatalf("alpha at byte %d = %d, want 255", i, f.Raw[i])
		}
	}
}

func fastOptions() Options {
	o := DefaultOptions()
	o.AcquireTimeout = 5 * time.Millisecond
	o.RetryDelay = time.Millisecond
	o.PollInterval = time.Millisecond
	return o
}

// fakeDuplicator serves padded BGRA frames. acquireErr and present, when
// set, script the result of the n-th acquire.
type fakeDuplicator struct {
	width, height, pad int

	acquireErr func(n int) error
	present    func(n int) int64

	mu       sync.Mutex
	acquires int
	held     bool
	mapped   bool
	leaked   int
	released int
	closed   bool
}

func (d *fakeDuplicator) AcquireNextFrame(timeout time.Duration) (FrameInfo, error) {
	time.Sleep(200 * time.Microsecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return FrameInfo{}, errors.New("duplicator closed")
	}
	if d.held {
		d.leaked++
	}
	n := d.acquires
	d.acquires++
	if d.acquireErr != nil {
		if err := d.acquireErr(n); err != nil {
			return FrameInfo{}, err
		}
	}
	d.held = true
	info := FrameInfo{LastPresentTime: int64(n + 1), AccumulatedFrames: 1}
	if d.present != nil {
		info.LastPresentTime = d.present(n)
	}
	return info, nil
}

func (d *fakeDuplicator) MapFrame() (Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.held {
		return Surface{}, errors.New("map without acquired frame")
	}
	d.mapped = true
	return bgraSurface(d.width, d.height, d.pad, 10, 20, 30), nil
}

func (d *fakeDuplicator) UnmapFrame() {
	d.mu.Lock()
	d.mapped = false
	d.mu.Unlock()
}

func (d *fakeDuplicator) ReleaseFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.held {
		d.released++
	}
	d.held = false
	return nil
}

func (d *fakeDuplicator) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDuplicator) snapshot() (acquires, released, leaked int, closed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquires, d.released, d.leaked, d.closed
}

// fakeBuffer is a push-delivered pixel buffer.
type fakeBuffer struct {
	surface Surface
	locks   *atomic.Int64
}

func (b fakeBuffer) Lock() (Surface, error) {
	b.locks.Add(1)
	return b.surface, nil
}

func (b fakeBuffer) Unlock() {}

// fakeSession pushes buffers from its own goroutine, like an OS capture
// stream does.
type fakeSession struct {
	format  PixelFormat
	surface func() Surface
	startErr error

	locks   atomic.Int64
	started atomic.Int64
	onStop  func(error)

	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newFakeSession(w, h int) *fakeSession {
	return &fakeSession{
		format:  FormatBGRA,
		surface: func() Surface { return bgraSurface(w, h, 16, 1, 2, 3) },
		quit:    make(chan struct{}),
	}
}

func (s *fakeSession) Format() PixelFormat { return s.format }

func (s *fakeSession) Start(onBuffer func(PixelBuffer), onStop func(error)) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started.Add(1)
	s.onStop = onStop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-t.C:
				onBuffer(fakeBuffer{surface: s.surface(), locks: &s.locks})
			}
		}
	}()
	return nil
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
	return nil
}

// fakePortal hands out a fixed session.
type fakePortal struct {
	session *fakePortalSession
	err     error
	calls   atomic.Int64
}

func (p *fakePortal) Negotiate(ctx context.Context, target Target) (PortalSession, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.session, nil
}

type fakePortalSession struct {
	handle string
	node   uint32
	closed atomic.Bool
}

func (s *fakePortalSession) Handle() string { return s.handle }
func (s *fakePortalSession) NodeID() uint32 { return s.node }
func (s *fakePortalSession) RemoteFD() int  { return -1 }
func (s *fakePortalSession) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeStream mimics a stream client: all state changes happen on its own
// loop goroutine, fed by a control channel.
type fakeStream struct {
	offer  PixelFormat
	width  int
	height int

	ctrl       chan bool
	activates  atomic.Int64
	pauses     atomic.Int64
	flushes    atomic.Int64
	connectErr error
	failPauses atomic.Int64
	closed     atomic.Bool
	onError    func(error)

	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newFakeStream(format PixelFormat, w, h int) *fakeStream {
	return &fakeStream{
		offer:  format,
		width:  w,
		height: h,
		ctrl:   make(chan bool, 16),
		quit:   make(chan struct{}),
	}
}

func (s *fakeStream) surface() Surface {
	bpp := s.offer.BytesPerPixel()
	stride := s.width*bpp + 8
	pix := make([]byte, stride*s.height)
	for i := range pix {
		pix[i] = byte(i)
	}
	if s.offer == FormatRGBA {
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				pix[y*stride+x*4+3] = 255
			}
		}
	}
	return Surface{Width: s.width, Height: s.height, Stride: stride, Format: s.offer, Pix: pix}
}

func (s *fakeStream) Connect(session PortalSession, formats []PixelFormat, onBuffer func(Surface), onError func(error)) (PixelFormat, error) {
	if s.connectErr != nil {
		return FormatUnknown, s.connectErr
	}
	match := false
	for _, f := range formats {
		if f == s.offer {
			match = true
		}
	}
	if !match {
		return FormatUnknown, ErrNoCommonFormat
	}
	s.onError = onError

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		active := false
		t := time.NewTicker(time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-s.quit:
				return
			case a := <-s.ctrl:
				if !a && active {
					s.flushes.Add(1)
				}
				active = a
			case <-t.C:
				if active {
					onBuffer(s.surface())
				}
			}
		}
	}()
	return s.offer, nil
}

func (s *fakeStream) SetActive(active bool) error {
	if active {
		s.activates.Add(1)
	} else {
		s.pauses.Add(1)
		if s.failPauses.Add(-1) >= 0 {
			return errors.New("pause rejected")
		}
	}
	select {
	case s.ctrl <- active:
		return nil
	default:
		return errors.New("control queue full")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
	s.closed.Store(true)
	return nil
}

// fakeStill returns a solid opaque image, failing first failFirst times.
type fakeStill struct {
	width, height int
	failFirst     int64
	failAlways    bool

	calls  atomic.Int64
	closed atomic.Bool
}

func (c *fakeStill) CaptureImage() (*image.RGBA, error) {
	n := c.calls.Add(1)
	if c.failAlways || n <= c.failFirst {
		return nil, errors.New("GetImage failed")
	}
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img, nil
}

func (c *fakeStill) Close() error {
	c.closed.Store(true)
	return nil
}

// testContext stands in for testing.T.Context (Go 1.24+): the returned
// context is cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
