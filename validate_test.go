package aidetect

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestValidate_Rejections(t *testing.T) {
	t.Parallel()

	small := HeuristicConfig{MaxFileSize: 1024}
	tests := []struct {
		name    string
		raw     []byte
		hc      HeuristicConfig
		wantErr error
		wantMsg string
	}{
		{"empty", nil, HeuristicConfig{}, ErrEmptyImage, "Empty image data"},
		{"garbage", []byte("definitely not an image"), HeuristicConfig{}, ErrUnsupportedFormat, "Invalid image format"},
		{"oversize bytes", bytes.Repeat([]byte{0xff}, 2048), small, ErrFileTooLarge, "Image too large: 2.0KB (max: 1.0KB)"},
		{"too wide", encodePNG(rampImage(300, 100)), HeuristicConfig{MaxDimension: 256}, ErrDimensions, "Dimensions too large: 300x100 (max: 256)"},
		{"too small", encodePNG(rampImage(40, 10)), HeuristicConfig{}, ErrDimensions, "Dimensions too small: 40x10 (min: 32)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			img, err := Validate(tc.raw, tc.hc)
			if err == nil {
				t.Fatalf("Validate succeeded (%dx%d), want error", img.Width, img.Height)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tc.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not *ValidationError", err)
			}
			if !strings.HasPrefix(ve.Msg, tc.wantMsg) {
				t.Errorf("Msg = %q, want prefix %q", ve.Msg, tc.wantMsg)
			}
		})
	}
}

func TestValidate_SizeCheckedBeforeDecode(t *testing.T) {
	t.Parallel()

	// A valid image one byte over the limit is still rejected on size.
	raw := encodePNG(rampImage(64, 64))
	_, err := Validate(raw, HeuristicConfig{MaxFileSize: int64(len(raw) - 1)})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}

	if _, err := Validate(raw, HeuristicConfig{MaxFileSize: int64(len(raw))}); err != nil {
		t.Fatalf("image exactly at the limit rejected: %v", err)
	}
}

func TestValidate_DecodesFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    []byte
		format string
	}{
		{"png", encodePNG(rampImage(120, 80)), "png"},
		{"jpeg", encodeJPEG(rampImage(120, 80)), "jpeg"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			img, err := Validate(tc.raw, HeuristicConfig{})
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if img.Format != tc.format {
				t.Errorf("Format = %q, want %q", img.Format, tc.format)
			}
			if img.Width != 120 || img.Height != 80 {
				t.Errorf("dimensions = %dx%d, want 120x80", img.Width, img.Height)
			}
			if img.Metadata == nil {
				t.Error("Metadata is nil, want empty map")
			}
			if s := img.Sample(); s == nil || s.Bounds().Dx() != 120 {
				t.Errorf("sample not at full size: %v", s.Bounds())
			}
		})
	}
}

func TestValidate_SampleBounded(t *testing.T) {
	t.Parallel()

	img, err := Validate(encodePNG(rampImage(400, 100)), HeuristicConfig{AnalysisMaxSide: 200})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b := img.Sample().Bounds()
	if b.Dx() != 200 || b.Dy() != 50 {
		t.Errorf("sample = %dx%d, want 200x50", b.Dx(), b.Dy())
	}
	if img.Width != 400 {
		t.Errorf("Width = %d, want full width 400", img.Width)
	}
}

// transparent copies img into NRGBA with every pixel fully transparent.
func transparent(img *image.RGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0})
		}
	}
	return out
}

func TestValidate_SampleDropsAlpha(t *testing.T) {
	t.Parallel()

	src := rampImage(120, 80)
	img, err := Validate(encodePNG(transparent(src)), HeuristicConfig{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, p := range []image.Point{{0, 0}, {60, 40}, {119, 79}} {
		got, want := img.Sample().RGBAAt(p.X, p.Y), src.RGBAAt(p.X, p.Y)
		if got != want {
			t.Errorf("sample at %v = %v, want %v", p, got, want)
		}
	}

	// Downscaled samples keep the colour too.
	img, err = Validate(encodePNG(transparent(src)), HeuristicConfig{AnalysisMaxSide: 60})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c := img.Sample().RGBAAt(30, 20); c.A != 0xff || c.B < 60 || c.B > 68 {
		t.Errorf("downscaled sample pixel = %v, want opaque with B near 64", c)
	}
}

func TestHumanSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int64
		want string
	}{
		{512, "0.5KB"},
		{20 * 1024 * 1024, "20.0MB"},
		{25*1024*1024 + 512*1024, "25.5MB"},
	}
	for _, tc := range tests {
		if got := humanSize(tc.n); got != tc.want {
			t.Errorf("humanSize(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
