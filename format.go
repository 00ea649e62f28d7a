package aidetect

import "fmt"

// IsKnownAIResolution reports whether w×h (in either orientation) exactly
// matches a default generator output size. Near-matches never count.
func IsKnownAIResolution(w, h int, known []Resolution) bool {
	for _, r := range known {
		if (r.Width == w && r.Height == h) || (r.Width == h && r.Height == w) {
			return true
		}
	}
	return false
}

type formatScorer struct{}

func (formatScorer) Name() string { return ScorerFormat }

func (formatScorer) Score(img *DecodedImage, hc HeuristicConfig) (ScoreEntry, error) {
	entry := ScoreEntry{Flags: []string{}}
	if IsKnownAIResolution(img.Width, img.Height, hc.KnownAIResolutions) {
		entry.Score = formatWeight
		entry.Flags = append(entry.Flags, fmt.Sprintf("Exact match to common AI resolution: %dx%d", img.Width, img.Height))
	}
	return entry, nil
}
