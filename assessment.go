package aidetect

import (
	"math"
	"sort"
)

// DetectionLevel is the discrete verdict derived from the aggregate score.
// Levels are ordered from least to most AI-like.
type DetectionLevel int

const (
	LevelLikelyReal DetectionLevel = iota // no obvious artifacts
	LevelUncertain                        // weak evidence, ML required
	LevelSuspicious                       // moderate evidence, ML recommended
	LevelObviousAI                        // several strong signals
)

// Decision thresholds, closed lower bound.
const (
	obviousAIThreshold  = 0.70
	suspiciousThreshold = 0.40
	uncertainThreshold  = 0.20
)

func (l DetectionLevel) String() string {
	switch l {
	case LevelObviousAI:
		return "obvious_ai"
	case LevelSuspicious:
		return "suspicious"
	case LevelUncertain:
		return "uncertain"
	default:
		return "likely_real"
	}
}

// MarshalText encodes the level by name.
func (l DetectionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Aggregate sums the scorer contributions and clips the total to [0, 1].
// Entries are summed in name order and rounded to three decimals, so the
// result does not depend on the order scorers finished in.
func Aggregate(b Breakdown) float64 {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0.0
	for _, name := range names {
		total += b[name].Score
	}
	return clip01(round3(total))
}

// Classify maps an aggregate probability to a detection level and whether
// the slower ML classifier should confirm it.
func Classify(p float64) (DetectionLevel, bool) {
	switch {
	case p >= obviousAIThreshold:
		return LevelObviousAI, false
	case p >= suspiciousThreshold:
		return LevelSuspicious, true
	case p >= uncertainThreshold:
		return LevelUncertain, true
	default:
		return LevelLikelyReal, false
	}
}

// Recommendation returns the human-readable advice shown next to a level.
func Recommendation(l DetectionLevel) string {
	switch l {
	case LevelObviousAI:
		return "High confidence AI detection - multiple obvious artifacts found"
	case LevelSuspicious:
		return "Suspicious patterns detected - ML verification recommended"
	case LevelUncertain:
		return "Inconclusive - ML analysis required for accurate detection"
	default:
		return "No obvious AI artifacts detected - likely authentic photo"
	}
}

// decide applies Classify plus the per-config likely_real override.
func decide(p float64, hc HeuristicConfig) (DetectionLevel, bool) {
	level, needsML := Classify(p)
	if level == LevelLikelyReal && hc.VerifyLikelyReal {
		needsML = true
	}
	return level, needsML
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clip01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
