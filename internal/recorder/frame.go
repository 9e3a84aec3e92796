package recorder

import (
	"fmt"
	"image"
)

// Frame is one decoded screen image. Raw holds Width*Height pixels in
// row-major RGBA8 order with no row padding. A Frame is never modified
// after it is handed to the frame channel.
type Frame struct {
	Width  uint32
	Height uint32
	Raw    []byte
}

// Validate checks the buffer length against the frame dimensions.
func (f Frame) Validate() error {
	want := uint64(f.Width) * uint64(f.Height) * 4
	if uint64(len(f.Raw)) != want {
		return fmt.Errorf("%w: %dx%d frame has %d bytes, want %d",
			ErrFrameSize, f.Width, f.Height, len(f.Raw), want)
	}
	return nil
}

// Image returns an *image.RGBA view over the frame pixels. The view
// shares memory with the frame and must be treated as read-only.
func (f Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Raw,
		Stride: int(f.Width) * 4,
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}
}

// FrameFromImage builds a Frame from img. Tightly packed images with a
// zero origin are adopted without copying; anything else is repacked.
func FrameFromImage(img *image.RGBA) (Frame, error) {
	if img == nil {
		return Frame{}, fmt.Errorf("%w: nil image", ErrFrameSize)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Frame{}, fmt.Errorf("%w: empty image %v", ErrFrameSize, b)
	}

	row := w * 4
	if b.Min == (image.Point{}) && img.Stride == row && len(img.Pix) == row*h {
		return Frame{Width: uint32(w), Height: uint32(h), Raw: img.Pix}, nil
	}

	raw := make([]byte, row*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		if off+row > len(img.Pix) {
			return Frame{}, fmt.Errorf("%w: image row %d out of range", ErrFrameSize, y)
		}
		copy(raw[y*row:(y+1)*row], img.Pix[off:off+row])
	}
	return Frame{Width: uint32(w), Height: uint32(h), Raw: raw}, nil
}
