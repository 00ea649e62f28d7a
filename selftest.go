package aidetect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// Version is reported by SelfTest.
const Version = "v0.6"

// SelfTestCase is one self-test scenario outcome.
type SelfTestCase struct {
	Test    string `json:"test"`
	Status  string `json:"status"` // pass | fail
	Details string `json:"details"`
}

// SelfTestReport summarizes SelfTest.
type SelfTestReport struct {
	Status  string         `json:"status"` // ok | error
	Version string         `json:"version"`
	Module  string         `json:"module"`
	Config  map[string]any `json:"config"`
	Tests   []SelfTestCase `json:"tests"`
	Summary string         `json:"summary"`
}

// SelfTest runs smoke scenarios through the pipeline with cfg's thresholds and
// scorers. The cache and similarity index are not touched.
func (cfg *Config) SelfTest(ctx context.Context) SelfTestReport {
	hc := cfg.heuristics()
	checker := &Config{Heuristics: hc, Scorers: cfg.Scorers, Sequential: cfg.Sequential}

	cases := []struct {
		name      string
		data      func() ([]byte, error)
		wantError bool
	}{
		{"basic_functionality", func() ([]byte, error) { return grayJPEG(512, 512) }, false},
		{"size_validation", func() ([]byte, error) { return bytes.Repeat([]byte("x"), int(hc.MaxFileSize)+1), nil }, true},
		{"invalid_data", func() ([]byte, error) { return []byte("not an image"), nil }, true},
	}

	report := SelfTestReport{
		Version: Version,
		Module:  "aidetect",
		Config: map[string]any{
			"max_file_size_mb": hc.MaxFileSize / (1024 * 1024),
			"max_dimension":    hc.MaxDimension,
		},
		Tests: make([]SelfTestCase, 0, len(cases)),
	}

	passed := 0
	for _, c := range cases {
		tc := SelfTestCase{Test: c.name, Status: "fail"}
		data, err := c.data()
		if err != nil {
			tc.Details = err.Error()
			report.Tests = append(report.Tests, tc)
			continue
		}

		res := checker.Analyze(ctx, data)
		switch {
		case c.wantError && !res.OK():
			tc.Status, tc.Details = "pass", res.Err.Message
		case !c.wantError && res.OK():
			tc.Status, tc.Details = "pass", "OK"
		case c.wantError:
			tc.Details = "Should have failed"
		default:
			tc.Details = res.Err.Message
		}
		if tc.Status == "pass" {
			passed++
		}
		report.Tests = append(report.Tests, tc)
	}

	report.Status = "ok"
	if passed != len(cases) {
		report.Status = "error"
	}
	report.Summary = fmt.Sprintf("%d/%d tests passed", passed, len(cases))
	return report
}

func grayJPEG(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, gray)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
