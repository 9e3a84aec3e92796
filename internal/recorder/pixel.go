package recorder

import "fmt"

// PixelFormat names the byte layout of a native capture buffer.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatRGBA
	FormatRGBx
	FormatBGRA
	FormatBGRx
	FormatRGB
)

var formatNames = map[PixelFormat]string{
	FormatUnknown: "unknown",
	FormatRGBA:    "RGBA",
	FormatRGBx:    "RGBx",
	FormatBGRA:    "BGRA",
	FormatBGRx:    "BGRx",
	FormatRGB:     "RGB",
}

func (f PixelFormat) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// ParsePixelFormat maps a GStreamer/PipeWire style format name to a
// PixelFormat.
func ParsePixelFormat(name string) (PixelFormat, bool) {
	for f, s := range formatNames {
		if f != FormatUnknown && s == name {
			return f, true
		}
	}
	return FormatUnknown, false
}

// BytesPerPixel returns the packed pixel size, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB:
		return 3
	case FormatRGBA, FormatRGBx, FormatBGRA, FormatBGRx:
		return 4
	}
	return 0
}

// StreamFormats is the set of formats a streaming client may negotiate.
var StreamFormats = []PixelFormat{FormatRGB, FormatRGBA, FormatRGBx, FormatBGRx}

// Surface describes a mapped native pixel buffer. Stride is the distance
// in bytes between row starts and may exceed Width*BytesPerPixel. Pix is
// only valid while the owning buffer is mapped.
type Surface struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// Decode copies s into a new Frame, dropping row padding and converting
// to RGBA8. Formats without a meaningful alpha channel come out opaque.
// Desktop BGRA surfaces are opaque too, since compositors leave their
// alpha undefined.
func Decode(s Surface) (Frame, error) {
	bpp := s.Format.BytesPerPixel()
	if bpp == 0 {
		return Frame{}, fmt.Errorf("decode: unsupported pixel format %v", s.Format)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return Frame{}, fmt.Errorf("%w: empty surface %dx%d", ErrFrameSize, s.Width, s.Height)
	}

	rowBytes := s.Width * bpp
	stride := s.Stride
	if stride == 0 {
		stride = rowBytes
	}
	if stride < rowBytes {
		return Frame{}, fmt.Errorf("%w: stride %d shorter than row %d", ErrFrameSize, stride, rowBytes)
	}
	if need := stride*(s.Height-1) + rowBytes; len(s.Pix) < need {
		return Frame{}, fmt.Errorf("%w: %v surface %dx%d needs %d bytes, have %d",
			ErrFrameSize, s.Format, s.Width, s.Height, need, len(s.Pix))
	}

	out := make([]byte, s.Width*s.Height*4)
	dstRow := s.Width * 4
	for y := 0; y < s.Height; y++ {
		src := s.Pix[y*stride : y*stride+rowBytes]
		dst := out[y*dstRow : (y+1)*dstRow]
		convertRow(s.Format, dst, src)
	}

	return Frame{Width: uint32(s.Width), Height: uint32(s.Height), Raw: out}, nil
}

func convertRow(format PixelFormat, dst, src []byte) {
	switch format {
	case FormatRGBA:
		copy(dst, src)
	case FormatRGBx:
		copy(dst, src)
		for i := 3; i < len(dst); i += 4 {
			dst[i] = 255
		}
	case FormatBGRA, FormatBGRx:
		for i := 0; i+3 < len(src); i += 4 {
			dst[i] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i]
			dst[i+3] = 255
		}
	case FormatRGB:
		for i, j := 0, 0; j+2 < len(src); i, j = i+4, j+3 {
			dst[i] = src[j]
			dst[i+1] = src[j+1]
			dst[i+2] = src[j+2]
			dst[i+3] = 255
		}
	}
}
