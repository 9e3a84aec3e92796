//go:build linux && cgo

package pipewire

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"golang.org/x/sys/unix"
)

var gstInit sync.Once

// glibLoop runs the default GLib main context on a locked OS thread while
// at least one GstClient is alive. Bus watches and IdleAdd callbacks are
// dispatched there.
var glibLoop struct {
	sync.Mutex
	refs int
	loop *glib.MainLoop
	done chan struct{}
}

func acquireLoop() {
	glibLoop.Lock()
	defer glibLoop.Unlock()
	glibLoop.refs++
	if glibLoop.refs > 1 {
		return
	}
	loop := glib.NewMainLoop(glib.MainContextDefault(), false)
	done := make(chan struct{})
	glibLoop.loop = loop
	glibLoop.done = done
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		loop.Run()
		close(done)
	}()
}

func releaseLoop() {
	glibLoop.Lock()
	defer glibLoop.Unlock()
	glibLoop.refs--
	if glibLoop.refs > 0 {
		return
	}
	loop, done := glibLoop.loop, glibLoop.done
	// Quit from inside the loop so a Run that has not started yet still sees it
	if _, err := glib.IdleAdd(func() bool {
		loop.Quit()
		return false
	}); err != nil {
		loop.Quit()
	}
	<-done
	glibLoop.loop = nil
}

// GstClient receives a portal stream through an in-process GStreamer
// pipeline ending in an appsink. Buffers are handed over on the GStreamer
// streaming thread. Pause and resume run on the GLib main loop.
type GstClient struct {
	opts StreamOptions
	log  *zerolog.Logger

	pipeline *gst.Pipeline
	sink     *app.Sink
	fd       int
	loopHeld bool

	active     atomic.Bool
	negotiated atomic.Bool
	format     recorder.PixelFormat
	capsCh     chan Caps
	setupErr   chan error
	onBuffer   func(recorder.Surface)
	onError    func(error)

	closeOnce sync.Once
}

// NewGstClient creates an in-process GStreamer stream client
func NewGstClient(opts StreamOptions) (*GstClient, error) {
	gstInit.Do(func() { gst.Init(nil) })
	return &GstClient{
		opts:     opts.withDefaults(),
		log:      logger.WithComponent("pipewire-stream"),
		fd:       -1,
		capsCh:   make(chan Caps, 1),
		setupErr: make(chan error, 1),
	}, nil
}

// Connect builds the pipeline, starts it and blocks until the first
// sample reveals the negotiated format. The stream is left paused.
func (c *GstClient) Connect(session recorder.PortalSession, formats []recorder.PixelFormat, onBuffer func(recorder.Surface), onError func(error)) (recorder.PixelFormat, error) {
	c.onBuffer = onBuffer
	c.onError = onError

	if fd := session.RemoteFD(); fd >= 0 {
		dup, err := unix.Dup(fd)
		if err != nil {
			return recorder.FormatUnknown, fmt.Errorf("failed to dup pipewire remote: %w", err)
		}
		c.fd = dup
	}

	desc := pipelineDesc(c.fd, session.NodeID(), capsFilter(formats, c.opts),
		"appsink name=sink max-buffers=1 drop=true sync=false")
	c.log.Debug().Str("pipeline", desc).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return recorder.FormatUnknown, fmt.Errorf("failed to create pipeline: %w", err)
	}
	c.pipeline = pipeline

	sinkElement, err := pipeline.GetElementByName("sink")
	if err != nil {
		return recorder.FormatUnknown, fmt.Errorf("failed to get appsink: %w", err)
	}
	c.sink = app.SinkFromElement(sinkElement)
	c.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onSample,
	})

	acquireLoop()
	c.loopHeld = true
	pipeline.GetPipelineBus().AddWatch(c.onMessage)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return recorder.FormatUnknown, fmt.Errorf("failed to start pipeline: %w", err)
	}

	select {
	case caps := <-c.capsCh:
		c.format = caps.Format
		c.negotiated.Store(true)
		c.log.Info().
			Uint32("node_id", session.NodeID()).
			Str("format", caps.Format.String()).
			Int("width", caps.Width).
			Int("height", caps.Height).
			Msg("PipeWire stream negotiated")
	case err := <-c.setupErr:
		return recorder.FormatUnknown, err
	case <-time.After(c.opts.NegotiateTimeout):
		return recorder.FormatUnknown, fmt.Errorf("no buffer within %v of starting the stream", c.opts.NegotiateTimeout)
	}

	if _, err := glib.IdleAdd(func() bool {
		c.apply(false)
		return false
	}); err != nil {
		return recorder.FormatUnknown, fmt.Errorf("failed to pause stream: %w", err)
	}
	return c.format, nil
}

// SetActive queues a state change on the GLib loop. Pausing also flushes
// buffers queued in the pipeline.
func (c *GstClient) SetActive(active bool) error {
	if c.pipeline == nil {
		return recorder.ErrClosed
	}
	_, err := glib.IdleAdd(func() bool {
		c.apply(active)
		return false
	})
	return err
}

// apply runs on the GLib loop
func (c *GstClient) apply(active bool) {
	if c.pipeline == nil {
		return
	}
	if active {
		c.active.Store(true)
		if err := c.pipeline.SetState(gst.StatePlaying); err != nil {
			c.log.Warn().Err(err).Msg("Failed to resume stream")
		}
		return
	}

	c.active.Store(false)
	if err := c.pipeline.SetState(gst.StatePaused); err != nil {
		c.log.Warn().Err(err).Msg("Failed to pause stream")
	}
	c.pipeline.SendEvent(gst.NewFlushStartEvent())
	c.pipeline.SendEvent(gst.NewFlushStopEvent(false))
	c.log.Debug().Msg("Stream paused and flushed")
}

func (c *GstClient) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}

	caps, ok := sampleCaps(sample)
	if !ok {
		c.log.Debug().Msg("Sample without usable caps, skipping")
		return gst.FlowOK
	}
	if !c.negotiated.Load() {
		select {
		case c.capsCh <- caps:
		default:
		}
		return gst.FlowOK
	}
	if !c.active.Load() {
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	data := mapInfo.Bytes()
	c.onBuffer(recorder.Surface{
		Width:  caps.Width,
		Height: caps.Height,
		Stride: strideFor(caps.Format, caps.Width, caps.Height, len(data)),
		Format: caps.Format,
		Pix:    data,
	})
	return gst.FlowOK
}

func sampleCaps(sample *gst.Sample) (Caps, bool) {
	caps := sample.GetCaps()
	if caps == nil {
		return Caps{}, false
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return Caps{}, false
	}

	formatVal, _ := structure.GetValue("format")
	widthVal, _ := structure.GetValue("width")
	heightVal, _ := structure.GetValue("height")

	name, _ := formatVal.(string)
	format, ok := recorder.ParsePixelFormat(name)
	if !ok {
		return Caps{}, false
	}
	w, ok := widthVal.(int)
	if !ok {
		return Caps{}, false
	}
	h, ok := heightVal.(int)
	if !ok {
		return Caps{}, false
	}
	return Caps{Format: format, Width: w, Height: h}, true
}

func (c *GstClient) onMessage(msg *gst.Message) bool {
	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		err := fmt.Errorf("pipeline error: %s", gerr.Error())
		if strings.Contains(gerr.DebugString(), "not-negotiated") {
			err = fmt.Errorf("%w: %s", recorder.ErrNoCommonFormat, gerr.DebugString())
		}
		c.log.Error().Str("debug", gerr.DebugString()).Err(err).Msg("GStreamer error")
		c.fail(err)
		return false

	case gst.MessageEOS:
		c.fail(errors.New("pipewire stream ended"))
		return false

	case gst.MessageStateChanged:
		if msg.Source() == c.pipeline.GetName() {
			from, to := msg.ParseStateChanged()
			c.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Pipeline state changed")
		}
	}
	return true
}

func (c *GstClient) fail(err error) {
	if !c.negotiated.Load() {
		select {
		case c.setupErr <- err:
		default:
		}
		return
	}
	c.onError(err)
}

// Close stops the pipeline. Once it returns no more buffers are delivered.
func (c *GstClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.active.Store(false)
		if c.pipeline != nil {
			err = c.pipeline.SetState(gst.StateNull)
		}
		if c.loopHeld {
			releaseLoop()
		}
		if c.fd >= 0 {
			unix.Close(c.fd)
			c.fd = -1
		}
		c.log.Debug().Msg("GStreamer pipeline stopped")
	})
	return err
}
