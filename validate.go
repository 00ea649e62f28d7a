package aidetect

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Validation failure causes, usable with errors.Is.
var (
	ErrEmptyImage        = errors.New("empty image data")
	ErrFileTooLarge      = errors.New("image too large")
	ErrUnsupportedFormat = errors.New("invalid image format")
	ErrDimensions        = errors.New("dimensions out of range")
)

// ValidationError rejects an input before any scorer runs.
type ValidationError struct {
	Msg string
	Err error // one of the Err* causes above
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(cause error, format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), Err: cause}
}

// DecodedImage is a validated, bounded image ready for scoring.
// It is read-only after Validate returns and safe to share between goroutines.
type DecodedImage struct {
	Width    int
	Height   int
	Format   string            // decoder name: "jpeg", "png", "webp", ...
	Image    image.Image       // full-resolution decode
	Metadata map[string]string // "<source>.<Tag>" → value; empty when none

	sample *image.RGBA
}

// Sample returns the RGBA analysis copy whose longest side is at most
// HeuristicConfig.AnalysisMaxSide.
func (d *DecodedImage) Sample() *image.RGBA {
	return d.sample
}

// Validate checks raw bytes against hc and decodes them. Dimensions are read
// from the header first so oversized rasters are never allocated.
func Validate(raw []byte, hc HeuristicConfig) (*DecodedImage, error) {
	hc = hc.withDefaults()

	if len(raw) == 0 {
		return nil, invalid(ErrEmptyImage, "Empty image data")
	}
	if int64(len(raw)) > hc.MaxFileSize {
		return nil, invalid(ErrFileTooLarge, "Image too large: %s (max: %s)",
			humanSize(int64(len(raw))), humanSize(hc.MaxFileSize))
	}

	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, invalid(ErrUnsupportedFormat, "Invalid image format: %v", err)
	}
	w, h := imgCfg.Width, imgCfg.Height
	if w > hc.MaxDimension || h > hc.MaxDimension {
		return nil, invalid(ErrDimensions, "Dimensions too large: %dx%d (max: %d)", w, h, hc.MaxDimension)
	}
	if w < hc.MinDimension || h < hc.MinDimension {
		return nil, invalid(ErrDimensions, "Dimensions too small: %dx%d (min: %d)", w, h, hc.MinDimension)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, invalid(ErrUnsupportedFormat, "Failed to load image: %v", err)
	}

	return newDecodedImage(img, format, ExtractImageMetadata(raw, format), hc.AnalysisMaxSide), nil
}

func newDecodedImage(img image.Image, format string, meta map[string]string, maxSide int) *DecodedImage {
	if meta == nil {
		meta = map[string]string{}
	}
	b := img.Bounds()
	return &DecodedImage{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Format:   format,
		Image:    img,
		Metadata: meta,
		sample:   analysisSample(img, maxSide),
	}
}

// analysisSample copies img into opaque RGBA, downscaling so the longest side
// is at most maxSide. Alpha is dropped rather than composited.
func analysisSample(img image.Image, maxSide int) *image.RGBA {
	if o, ok := img.(interface{ Opaque() bool }); !ok || !o.Opaque() {
		img = opaqueView{img}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if longest := max(w, h); longest > maxSide {
		scale := float64(maxSide) / float64(longest)
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// opaqueView reads an image with alpha forced to full, keeping the stored
// colour of transparent pixels. Premultiplied sources have none to keep.
type opaqueView struct{ image.Image }

func (v opaqueView) ColorModel() color.Model { return color.NRGBA64Model }

func (v opaqueView) At(x, y int) color.Color {
	switch c := v.Image.At(x, y).(type) {
	case color.NRGBA:
		c.A = 0xff
		return c
	case color.NRGBA64:
		c.A = 0xffff
		return c
	default:
		n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
		n.A = 0xffff
		return n
	}
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return fmt.Sprintf("%.1fKB", float64(n)/1024)
}
