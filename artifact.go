package aidetect

import (
	"fmt"
	"image"
	"math"
)

// ArtifactStats are the statistics the artifact scorer decides on.
type ArtifactStats struct {
	EdgeMean     float64 // mean 3x3 edge response, 0..255
	LumaVariance float64 // population variance of luma
}

// MeasureArtifacts computes edge intensity and luma variance on an RGBA sample.
func MeasureArtifacts(sample *image.RGBA) ArtifactStats {
	luma, w, h := lumaPlane(sample)
	return ArtifactStats{
		EdgeMean:     edgeMean(luma, w, h),
		LumaVariance: variance(luma),
	}
}

// artifactScorer catches extreme oversharpening and airbrush-like smoothing.
// Merely sharp or merely soft photos stay below both thresholds.
type artifactScorer struct{}

func (artifactScorer) Name() string { return ScorerArtifacts }

func (artifactScorer) Score(img *DecodedImage, hc HeuristicConfig) (ScoreEntry, error) {
	sample := img.Sample()
	if sample == nil {
		return ScoreEntry{}, fmt.Errorf("artifacts: image has no analysis sample")
	}

	entry := ScoreEntry{Flags: []string{}}
	stats := MeasureArtifacts(sample)

	if stats.EdgeMean > hc.ExtremeSharpnessThreshold {
		entry.Score += sharpnessWeight
		entry.Flags = append(entry.Flags, fmt.Sprintf("Extreme sharpening detected (edge_mean=%.1f)", stats.EdgeMean))
	}
	if stats.LumaVariance < hc.ExtremeSmoothnessThreshold {
		entry.Score += smoothnessWeight
		entry.Flags = append(entry.Flags, fmt.Sprintf("Extreme smoothness detected (variance=%.1f)", stats.LumaVariance))
	}
	entry.Score = round3(entry.Score)
	return entry, nil
}

// lumaPlane converts RGBA to ITU-R 601 luma in 0..255.
func lumaPlane(img *image.RGBA) ([]float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, 0, w*h)
	for y := range h {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for x := range w {
			r, g, bl := float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2])
			out = append(out, math.Round(0.299*r+0.587*g+0.114*bl))
		}
	}
	return out, w, h
}

// edgeMean applies the 3x3 edge kernel (centre 8, neighbours -1) to interior
// pixels, clips responses to 0..255 and returns their mean.
func edgeMean(luma []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := luma[y*w+x]
			neigh := luma[(y-1)*w+x-1] + luma[(y-1)*w+x] + luma[(y-1)*w+x+1] +
				luma[y*w+x-1] + luma[y*w+x+1] +
				luma[(y+1)*w+x-1] + luma[(y+1)*w+x] + luma[(y+1)*w+x+1]
			sum += min(max(8*c-neigh, 0), 255)
		}
	}
	return sum / float64((w-2)*(h-2))
}

func variance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum, sum2 float64
	for _, x := range v {
		sum += x
		sum2 += x * x
	}
	n := float64(len(v))
	mean := sum / n
	return max(sum2/n-mean*mean, 0)
}
