package pipewire

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

// StreamOptions configures a PipeWire stream client
type StreamOptions struct {
	NegotiateTimeout time.Duration
	MaxWidth         int
	MaxHeight        int
	Framerate        int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.NegotiateTimeout <= 0 {
		o.NegotiateTimeout = 5 * time.Second
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 4096
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 4096
	}
	if o.Framerate <= 0 {
		o.Framerate = 24
	}
	return o
}

// capsFilter restricts the stream to formats the decoder handles. The
// string contains no spaces so it survives argv splitting.
func capsFilter(formats []recorder.PixelFormat, opts StreamOptions) string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.String())
	}
	return fmt.Sprintf("video/x-raw,format=(string){%s},width=(int)[1,%d],height=(int)[1,%d],framerate=(fraction)[0/1,%d/1]",
		strings.Join(names, ","), opts.MaxWidth, opts.MaxHeight, opts.Framerate)
}

// sourceElement builds the pipewiresrc element for a portal session
func sourceElement(fd int, nodeID uint32) string {
	src := fmt.Sprintf("pipewiresrc path=%d do-timestamp=true always-copy=true", nodeID)
	if fd >= 0 {
		src = fmt.Sprintf("pipewiresrc fd=%d path=%d do-timestamp=true always-copy=true", fd, nodeID)
	}
	return src
}

// pipelineDesc joins source, caps filter and sink into gst-launch syntax
func pipelineDesc(fd int, nodeID uint32, caps, sink string) string {
	return sourceElement(fd, nodeID) + " ! " + caps + " ! " + sink
}

// defaultStride is the row size GStreamer uses for packed RGB formats
// without video meta: rows are padded to 4 bytes.
func defaultStride(format recorder.PixelFormat, width int) int {
	return (width*format.BytesPerPixel() + 3) &^ 3
}

// strideFor infers the row stride from a mapped buffer size, falling back
// to the default layout when the size does not divide evenly.
func strideFor(format recorder.PixelFormat, width, height, size int) int {
	if height > 0 && size%height == 0 {
		if s := size / height; s >= width*format.BytesPerPixel() {
			return s
		}
	}
	return defaultStride(format, width)
}

// Caps is the negotiated video layout
type Caps struct {
	Format recorder.PixelFormat
	Width  int
	Height int
}

// parseCaps reads format, width and height out of a serialized caps
// string such as "video/x-raw, format=(string)BGRx, width=(int)2560, height=(int)1440".
func parseCaps(s string) (Caps, bool) {
	idx := strings.Index(s, "video/x-raw")
	if idx < 0 {
		return Caps{}, false
	}
	s = s[idx:]

	name := extractStringFromCaps(s, "format")
	format, ok := recorder.ParsePixelFormat(name)
	if !ok {
		return Caps{}, false
	}
	w := extractIntFromCaps(s, "width")
	h := extractIntFromCaps(s, "height")
	if w <= 0 || h <= 0 {
		return Caps{}, false
	}
	return Caps{Format: format, Width: w, Height: h}, true
}

// extractIntFromCaps extracts an integer value from a GStreamer caps string
func extractIntFromCaps(caps, key string) int {
	// Look for patterns like "width=(int)1920" or "width=1920"
	for _, pattern := range []string{key + "=(int)", key + "="} {
		idx := strings.Index(caps, pattern)
		if idx < 0 {
			continue
		}
		start := idx + len(pattern)
		end := start
		for end < len(caps) && caps[end] >= '0' && caps[end] <= '9' {
			end++
		}
		if end > start {
			if val, err := strconv.Atoi(caps[start:end]); err == nil {
				return val
			}
		}
	}
	return 0
}

func extractStringFromCaps(caps, key string) string {
	for _, pattern := range []string{key + "=(string)", key + "="} {
		idx := strings.Index(caps, pattern)
		if idx < 0 {
			continue
		}
		rest := caps[idx+len(pattern):]
		end := strings.IndexAny(rest, ", ;\"")
		if end < 0 {
			end = len(rest)
		}
		return rest[:end]
	}
	return ""
}
