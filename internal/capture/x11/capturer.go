// Package x11 takes still screenshots of a monitor, a monitor region or a
// single window over an X11 connection.
package x11

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/rs/zerolog"
)

// Capturer implements recorder.StillCapturer with xproto GetImage. It
// does not own the X connection.
type Capturer struct {
	conn             *xgb.Conn
	root             xproto.Window
	depth            byte
	compositeEnabled bool

	// bounds is the captured rectangle in root coordinates; unused for
	// window targets
	bounds image.Rectangle
	window xproto.Window

	mu     sync.Mutex
	closed bool
	log    *zerolog.Logger
}

// NewCapturer resolves target against the X server. Monitors are indexed
// in RandR CRTC order; Region is relative to the monitor and is clipped to
// it. A non-zero WindowID captures that window instead.
func NewCapturer(conn *xgb.Conn, target recorder.Target) (*Capturer, error) {
	if conn == nil {
		return nil, fmt.Errorf("x11: nil connection")
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)
	c := &Capturer{
		conn:  conn,
		root:  screen.Root,
		depth: screen.RootDepth,
		log:   logger.WithComponent("x11-capturer"),
	}
	if c.depth != 24 && c.depth != 32 {
		return nil, fmt.Errorf("%w: root depth %d", recorder.ErrUnsupported, c.depth)
	}

	if target.WindowID != 0 {
		if err := composite.Init(conn); err != nil {
			c.log.Warn().
				Err(err).
				Msg("Composite extension not available - obscured windows will capture incorrectly")
		} else {
			c.compositeEnabled = true
		}
		win, err := c.resolveWindow(xproto.Window(target.WindowID))
		if err != nil {
			return nil, err
		}
		c.window = win
		c.log.Info().Uint32("window_id", uint32(win)).Msg("Capturing window")
		return c, nil
	}

	monitors, err := Monitors(conn, c.root)
	if err != nil {
		c.log.Debug().Err(err).Msg("RandR unavailable, using the whole screen")
		monitors = []image.Rectangle{image.Rect(0, 0, int(screen.WidthInPixels), int(screen.HeightInPixels))}
	}
	if target.Monitor < 0 || target.Monitor >= len(monitors) {
		return nil, fmt.Errorf("%w: monitor %d of %d", recorder.ErrTargetNotFound, target.Monitor, len(monitors))
	}

	bounds, err := cropRegion(monitors[target.Monitor], target.Region)
	if err != nil {
		return nil, err
	}
	c.bounds = bounds
	c.log.Info().
		Int("monitor", target.Monitor).
		Str("bounds", bounds.String()).
		Msg("Capturing monitor")
	return c, nil
}

// cropRegion applies a monitor-relative region to monitor bounds
func cropRegion(monitor, region image.Rectangle) (image.Rectangle, error) {
	if region.Empty() {
		return monitor, nil
	}
	r := region.Add(monitor.Min).Intersect(monitor)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: region %v outside monitor %v", recorder.ErrTargetNotFound, region, monitor)
	}
	return r, nil
}

// Monitors lists active CRTC rectangles in root coordinates
func Monitors(conn *xgb.Conn, root xproto.Window) ([]image.Rectangle, error) {
	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("randr init: %w", err)
	}
	res, err := randr.GetScreenResourcesCurrent(conn, root).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr screen resources: %w", err)
	}

	var monitors []image.Rectangle
	for _, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		if info.Mode == 0 || info.NumOutputs == 0 || info.Width == 0 || info.Height == 0 {
			continue
		}
		x, y := int(info.X), int(info.Y)
		monitors = append(monitors, image.Rect(x, y, x+int(info.Width), y+int(info.Height)))
	}
	if len(monitors) == 0 {
		return nil, fmt.Errorf("no active monitors")
	}
	return monitors, nil
}

// CaptureImage grabs the current contents of the target
func (c *Capturer) CaptureImage() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, recorder.ErrClosed
	}
	if c.window != 0 {
		return c.captureWindow()
	}

	b := c.bounds
	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(b.Min.X), int16(b.Min.Y),
		uint16(b.Dx()), uint16(b.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return convertImageData(reply.Data, b.Dx(), b.Dy())
}

// Close marks the capturer closed. The X connection belongs to the caller.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// resolveWindow returns win or its first viewable InputOutput descendant
func (c *Capturer) resolveWindow(win xproto.Window) (xproto.Window, error) {
	attrs, err := xproto.GetWindowAttributes(c.conn, win).Reply()
	if err != nil {
		return 0, fmt.Errorf("%w: window 0x%x: %v", recorder.ErrTargetNotFound, uint32(win), err)
	}
	if attrs.Class == xproto.WindowClassInputOutput && attrs.MapState == xproto.MapStateViewable {
		return win, nil
	}

	c.log.Debug().
		Uint32("window_id", uint32(win)).
		Msg("Window not directly capturable, searching for child windows")
	child, err := c.findCapturableChild(win)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", recorder.ErrTargetNotFound, err)
	}
	return child, nil
}

// findCapturableChild recursively searches for a capturable child window
func (c *Capturer) findCapturableChild(parent xproto.Window) (xproto.Window, error) {
	tree, err := xproto.QueryTree(c.conn, parent).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query tree: %w", err)
	}

	for _, child := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(c.conn, child).Reply()
		if err != nil {
			continue
		}
		geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(child)).Reply()
		if err != nil {
			continue
		}
		if attrs.Class == xproto.WindowClassInputOutput && attrs.MapState == xproto.MapStateViewable {
			if geom.Width > 10 && geom.Height > 10 {
				return child, nil
			}
		}
		if grandchild, err := c.findCapturableChild(child); err == nil {
			return grandchild, nil
		}
	}
	return 0, fmt.Errorf("no capturable child of window 0x%x", uint32(parent))
}

func (c *Capturer) captureWindow() (*image.RGBA, error) {
	geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(c.window)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	drawable := xproto.Drawable(c.window)
	if c.compositeEnabled {
		if pixmap, release, err := c.windowPixmap(); err == nil {
			drawable = xproto.Drawable(pixmap)
			defer release()
		} else {
			c.log.Debug().Err(err).Msg("Composite pixmap unavailable, capturing window directly")
		}
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return convertImageData(reply.Data, int(geom.Width), int(geom.Height))
}

// windowPixmap redirects the window offscreen and names its backing
// pixmap. release undoes both.
func (c *Capturer) windowPixmap() (xproto.Pixmap, func(), error) {
	if err := composite.RedirectWindowChecked(c.conn, c.window, composite.RedirectAutomatic).Check(); err != nil {
		return 0, nil, fmt.Errorf("redirect window: %w", err)
	}
	pixmap, err := xproto.NewPixmapId(c.conn)
	if err != nil {
		composite.UnredirectWindow(c.conn, c.window, composite.RedirectAutomatic)
		return 0, nil, err
	}
	if err := composite.NameWindowPixmapChecked(c.conn, c.window, pixmap).Check(); err != nil {
		composite.UnredirectWindow(c.conn, c.window, composite.RedirectAutomatic)
		return 0, nil, fmt.Errorf("name window pixmap: %w", err)
	}
	release := func() {
		xproto.FreePixmap(c.conn, pixmap)
		composite.UnredirectWindow(c.conn, c.window, composite.RedirectAutomatic)
	}
	return pixmap, release, nil
}

// convertImageData converts 24/32 bit ZPixmap data (BGRX byte order) to
// an opaque RGBA image
func convertImageData(data []byte, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d image", recorder.ErrFrameSize, width, height)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d image", recorder.ErrFrameSize, len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height*4; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 255
	}
	return img, nil
}
