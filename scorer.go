package aidetect

// Scorer names as they appear in the breakdown.
const (
	ScorerArtifacts = "artifacts"
	ScorerMetadata  = "metadata"
	ScorerFormat    = "format"
	ScorerColor     = "color"
)

// Contribution weights.
const (
	sharpnessWeight  = 0.30
	smoothnessWeight = 0.25
	metadataWeight   = 0.50
	formatWeight     = 0.15
	uniformityWeight = 0.15
	saturationWeight = 0.15
)

// Scorer inspects one signal family and returns a bounded, additive
// contribution in [0, 1]. Scorers must not modify img; they run concurrently
// on the same DecodedImage.
type Scorer interface {
	Name() string
	Score(img *DecodedImage, hc HeuristicConfig) (ScoreEntry, error)
}

// DefaultScorers returns the four built-in scorers.
func DefaultScorers() []Scorer {
	return []Scorer{
		artifactScorer{},
		metadataScorer{},
		formatScorer{},
		colorScorer{},
	}
}
