package aidetect

import (
	"fmt"
	"image"
	"math"
)

// ColorStats holds per-channel standard deviations of an RGBA sample.
type ColorStats struct {
	StdR, StdG, StdB float64
}

// MaxChannelDiff is the largest pairwise difference between channel stds.
func (s ColorStats) MaxChannelDiff() float64 {
	return max(math.Abs(s.StdR-s.StdG), math.Abs(s.StdG-s.StdB), math.Abs(s.StdR-s.StdB))
}

// MeanStd is the average of the three channel stds.
func (s ColorStats) MeanStd() float64 {
	return (s.StdR + s.StdG + s.StdB) / 3
}

// MeasureColor computes per-channel population standard deviations.
func MeasureColor(img *image.RGBA) ColorStats {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var sum, sum2 [3]float64
	for y := range h {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for x := range w {
			for c := range 3 {
				v := float64(row[x*4+c])
				sum[c] += v
				sum2[c] += v * v
			}
		}
	}
	n := float64(w * h)
	if n == 0 {
		return ColorStats{}
	}
	var std [3]float64
	for c := range 3 {
		mean := sum[c] / n
		std[c] = math.Sqrt(max(sum2[c]/n-mean*mean, 0))
	}
	return ColorStats{StdR: std[0], StdG: std[1], StdB: std[2]}
}

// colorScorer flags near-identical channel spread and unrealistic color boost.
// Moderate grading and normal saturation stay inside both bounds.
type colorScorer struct{}

func (colorScorer) Name() string { return ScorerColor }

func (colorScorer) Score(img *DecodedImage, hc HeuristicConfig) (ScoreEntry, error) {
	sample := img.Sample()
	if sample == nil {
		return ScoreEntry{}, fmt.Errorf("color: image has no analysis sample")
	}

	entry := ScoreEntry{Flags: []string{}}
	stats := MeasureColor(sample)

	if d := stats.MaxChannelDiff(); d < hc.ExtremeUniformityThreshold {
		entry.Score += uniformityWeight
		entry.Flags = append(entry.Flags, fmt.Sprintf("Extreme color uniformity detected (max_diff=%.2f)", d))
	}
	if m := stats.MeanStd(); m > hc.ExtremeSaturationThreshold {
		entry.Score += saturationWeight
		entry.Flags = append(entry.Flags, fmt.Sprintf("Extreme color saturation detected (avg_std=%.1f)", m))
	}

	entry.Score = round3(entry.Score)
	return entry, nil
}
