//go:build linux

package pipewire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// LaunchClient streams a portal session through a gst-launch-1.0
// subprocess. Frames arrive on an extra pipe; the negotiated caps are read
// from the verbose output on stdout. It needs no cgo.
type LaunchClient struct {
	opts StreamOptions
	log  *zerolog.Logger

	cmd    *exec.Cmd
	stderr bytes.Buffer
	frames io.Closer

	ctrl chan bool
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
	closing   chan struct{}
}

// NewLaunchClient creates a subprocess based stream client
func NewLaunchClient(opts StreamOptions) *LaunchClient {
	return &LaunchClient{
		opts:    opts.withDefaults(),
		log:     logger.WithComponent("pipewire-launch"),
		ctrl:    make(chan bool, 8),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
}

// Connect starts gst-launch for the session's node and waits for caps
func (c *LaunchClient) Connect(session recorder.PortalSession, formats []recorder.PixelFormat, onBuffer func(recorder.Surface), onError func(error)) (recorder.PixelFormat, error) {
	frameR, frameW, err := os.Pipe()
	if err != nil {
		return recorder.FormatUnknown, fmt.Errorf("failed to create frame pipe: %w", err)
	}

	// ExtraFiles[i] becomes fd 3+i in the child
	var extra []*os.File
	remoteFD := -1
	if fd := session.RemoteFD(); fd >= 0 {
		dup, err := unix.Dup(fd)
		if err != nil {
			frameR.Close()
			frameW.Close()
			return recorder.FormatUnknown, fmt.Errorf("failed to dup pipewire remote: %w", err)
		}
		remote := os.NewFile(uintptr(dup), "pipewire-remote")
		defer remote.Close()
		extra = append(extra, remote)
		remoteFD = 3
	}
	extra = append(extra, frameW)
	sinkFD := 2 + len(extra)

	desc := pipelineDesc(remoteFD, session.NodeID(), capsFilter(formats, c.opts),
		fmt.Sprintf("fdsink fd=%d sync=false", sinkFD))
	c.log.Debug().Str("pipeline", desc).Msg("Starting GStreamer subprocess")

	c.cmd = exec.Command("gst-launch-1.0", append([]string{"-v"}, strings.Fields(desc)...)...)
	c.cmd.ExtraFiles = extra
	c.cmd.Stderr = &c.stderr
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		frameR.Close()
		frameW.Close()
		return recorder.FormatUnknown, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		frameR.Close()
		frameW.Close()
		return recorder.FormatUnknown, fmt.Errorf("failed to start gst-launch: %w", err)
	}
	frameW.Close()

	caps, err := c.awaitCaps(stdout, sinkFD)
	if err != nil {
		c.kill()
		frameR.Close()
		return recorder.FormatUnknown, err
	}
	c.log.Info().
		Int("pid", c.cmd.Process.Pid).
		Str("format", caps.Format.String()).
		Int("width", caps.Width).
		Int("height", caps.Height).
		Msg("GStreamer subprocess negotiated")

	c.run(frameR, caps, onBuffer, onError)
	return caps.Format, nil
}

// awaitCaps scans gst-launch -v output for the caps on the fdsink pad
func (c *LaunchClient) awaitCaps(stdout io.Reader, sinkFD int) (Caps, error) {
	found := make(chan Caps, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		sent := false
		for scanner.Scan() {
			line := scanner.Text()
			if sent || !strings.Contains(line, "GstFdSink") {
				continue
			}
			if caps, ok := parseCaps(line); ok {
				found <- caps
				sent = true
			}
		}
		// Keep draining so the child never blocks on stdout
		close(found)
	}()

	select {
	case caps, ok := <-found:
		if !ok {
			return Caps{}, c.exitError()
		}
		return caps, nil
	case <-time.After(c.opts.NegotiateTimeout):
		return Caps{}, fmt.Errorf("no caps negotiated within %v", c.opts.NegotiateTimeout)
	}
}

func (c *LaunchClient) exitError() error {
	_ = c.cmd.Wait()
	msg := c.stderr.String()
	if strings.Contains(msg, "not-negotiated") || strings.Contains(msg, "not negotiated") {
		return fmt.Errorf("%w: %s", recorder.ErrNoCommonFormat, strings.TrimSpace(msg))
	}
	return fmt.Errorf("gst-launch exited before negotiation: %s", strings.TrimSpace(msg))
}

// run starts the reader and the control loop. Only the control loop calls
// onBuffer, so pause and flush are ordered with delivery.
func (c *LaunchClient) run(r io.ReadCloser, caps Caps, onBuffer func(recorder.Surface), onError func(error)) {
	stride := defaultStride(caps.Format, caps.Width)
	frameSize := stride * caps.Height
	frames := make(chan []byte, 1)
	c.frames = r

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		defer close(frames)
		defer r.Close()
		reader := bufio.NewReaderSize(r, frameSize)
		for {
			buf := make([]byte, frameSize)
			if _, err := io.ReadFull(reader, buf); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
					c.log.Debug().Err(err).Msg("Frame read failed")
				}
				return
			}
			select {
			case frames <- buf:
			case <-c.closing:
				return
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		defer close(c.done)
		active := false
		for {
			select {
			case <-c.closing:
				return
			case a := <-c.ctrl:
				if !a {
					drain(frames)
				}
				active = a
			case buf, ok := <-frames:
				if !ok {
					select {
					case <-c.closing:
					default:
						onError(errors.New("pipewire stream ended"))
					}
					return
				}
				if active {
					onBuffer(recorder.Surface{
						Width:  caps.Width,
						Height: caps.Height,
						Stride: stride,
						Format: caps.Format,
						Pix:    buf,
					})
				}
			}
		}
	}()
}

func drain(frames <-chan []byte) {
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// SetActive queues a pause or resume on the control loop
func (c *LaunchClient) SetActive(active bool) error {
	select {
	case <-c.done:
		return recorder.ErrClosed
	default:
	}
	select {
	case c.ctrl <- active:
		return nil
	case <-c.done:
		return recorder.ErrClosed
	default:
		return errors.New("stream control queue full")
	}
}

// Close kills the subprocess and waits for the loops to exit
func (c *LaunchClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.kill()
		if c.frames != nil {
			c.frames.Close()
		}
		c.wg.Wait()
		c.log.Debug().Msg("GStreamer subprocess stopped")
	})
	return nil
}

func (c *LaunchClient) kill() {
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}
}
