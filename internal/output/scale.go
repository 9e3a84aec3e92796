package output

import (
	"image"

	"golang.org/x/image/draw"
)

// targetSize returns the output size for a w x h source
func targetSize(cfg Config, w, h int) (int, int) {
	switch {
	case cfg.Width > 0 && cfg.Height > 0:
		return cfg.Width, cfg.Height
	case cfg.Width > 0:
		return cfg.Width, max(1, h*cfg.Width/w)
	case cfg.Height > 0:
		return max(1, w*cfg.Height/h), cfg.Height
	}
	return w, h
}

// scale resizes src to cfg, returning src unchanged when no resize is needed
func scale(src *image.RGBA, cfg Config) *image.RGBA {
	b := src.Bounds()
	w, h := targetSize(cfg, b.Dx(), b.Dy())
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
