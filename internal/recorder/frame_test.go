package recorder

import (
	"errors"
	"image"
	"testing"
)

func TestFrameValidate(t *testing.T) {
	if err := (Frame{Width: 2, Height: 2, Raw: make([]byte, 16)}).Validate(); err != nil {
		t.Fatalf("valid frame: %v", err)
	}
	err := Frame{Width: 2, Height: 2, Raw: make([]byte, 15)}.Validate()
	if !errors.Is(err, ErrFrameSize) {
		t.Fatalf("err = %v, want ErrFrameSize", err)
	}
}

func TestFrameFromImageAdoptsTightImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 4))
	f, err := FrameFromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	if &f.Raw[0] != &img.Pix[0] {
		t.Error("tight image was copied")
	}
	if f.Width != 5 || f.Height != 4 {
		t.Errorf("got %dx%d", f.Width, f.Height)
	}
}

func TestFrameFromImageRepacksSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	sub := img.SubImage(image.Rect(2, 3, 6, 5)).(*image.RGBA)

	f, err := FrameFromImage(sub)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if f.Width != 4 || f.Height != 2 {
		t.Fatalf("got %dx%d, want 4x2", f.Width, f.Height)
	}
	if got, want := f.Raw[0], img.Pix[img.PixOffset(2, 3)]; got != want {
		t.Errorf("first byte = %d, want %d", got, want)
	}
	if got, want := f.Raw[16], img.Pix[img.PixOffset(2, 4)]; got != want {
		t.Errorf("second row byte = %d, want %d", got, want)
	}

	if _, err := FrameFromImage(nil); err == nil {
		t.Error("nil image accepted")
	}
}

func TestFrameImageView(t *testing.T) {
	f := Frame{Width: 3, Height: 2, Raw: make([]byte, 24)}
	img := f.Image()
	if img.Bounds() != image.Rect(0, 0, 3, 2) || img.Stride != 12 {
		t.Fatalf("bounds %v stride %d", img.Bounds(), img.Stride)
	}
}
