// Package imaging holds the camera-output transform pipeline: bounded
// downsample, orientation correction and JPEG re-encode under a size budget.
package imaging

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"

	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxWidth  = 1080
	DefaultMaxHeight = 1920
	DefaultQuality   = 100
)

// Options bound the output of Compress. Zero values fall back to the
// defaults above.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Compress reads the image at srcPath, fits it into the configured box
// without ever upscaling, applies the EXIF rotation if one is declared, and
// re-encodes the result as JPEG at destPath. Decode and encode failures are
// returned; scaling and rotation failures degrade to skipping the step.
func Compress(srcPath, destPath string, opts Options, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("failed to decode image bounds: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid image bounds %dx%d for %s", cfg.Width, cfg.Height, srcPath)
	}

	targetW, targetH := targetDims(cfg.Width, cfg.Height, opts.MaxWidth, opts.MaxHeight)
	factor := sampleFactor(cfg.Width, cfg.Height, targetW, targetH)

	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind source image: %w", err)
	}
	decoded, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	// The stride subsample bounds the retained working buffer at no more
	// than twice the target pixel count before the exact-size scale runs.
	working := image.Image(decoded)
	if factor > 1 {
		working = subsample(decoded, factor)
	}

	scaled := scaleTo(working, targetW, targetH, log)

	orientation := ReadOrientation(srcPath)
	rotated := rotate(scaled, orientation)

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := jpeg.Encode(out, rotated, &jpeg.Options{Quality: opts.Quality}); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to encode output image: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to finalize output file: %w", err)
	}
	return nil
}

// targetDims fits width x height into the max box preserving aspect ratio.
// Images already inside the box keep their native size.
func targetDims(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	imgRatio := float64(w) / float64(h)
	maxRatio := float64(maxW) / float64(maxH)
	switch {
	case imgRatio < maxRatio:
		r := float64(maxH) / float64(h)
		return int(math.Round(r * float64(w))), maxH
	case imgRatio > maxRatio:
		r := float64(maxW) / float64(w)
		return maxW, int(math.Round(r * float64(h)))
	default:
		return maxW, maxH
	}
}

// sampleFactor picks the power-of-two stride that keeps the working buffer
// within twice the requested pixel count.
func sampleFactor(w, h, reqW, reqH int) int {
	factor := 1
	if h > reqH || w > reqW {
		halfH := h / 2
		halfW := w / 2
		for halfH/factor >= reqH && halfW/factor >= reqW {
			factor *= 2
		}
	}
	totalPixels := float64(w) * float64(h)
	pixelBudget := float64(reqW) * float64(reqH) * 2
	for totalPixels/float64(factor*factor) > pixelBudget {
		factor *= 2
	}
	return factor
}

func subsample(src image.Image, factor int) *image.RGBA {
	b := src.Bounds()
	w := (b.Dx() + factor - 1) / factor
	h := (b.Dy() + factor - 1) / factor
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, src.At(b.Min.X+x*factor, b.Min.Y+y*factor))
		}
	}
	return dst
}

func scaleTo(src image.Image, w, h int, log *slog.Logger) (out image.Image) {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("scale failed, keeping unscaled image", "reason", r)
			out = src
		}
	}()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func rotate(src image.Image, orientation int) image.Image {
	switch orientation {
	case orientationRotate180:
		return rotate180(src)
	case orientationRotate90:
		return rotate90(src)
	case orientationRotate270:
		return rotate270(src)
	default:
		return src
	}
}

func rotate90(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate180(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, h-1-y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate270(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
