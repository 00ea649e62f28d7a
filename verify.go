package aidetect

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Default weights when combining the pre-filter score with an ML score.
const (
	DefaultPrefilterWeight = 0.3
	DefaultMLWeight        = 0.7
)

// aiThreshold is the combined score at or above which a verdict reads as AI.
const aiThreshold = 0.5

// VerifierPrompt is the instruction sent to multimodal LLM verifiers.
const VerifierPrompt = `You are a forensic image analyst. Estimate the probability that this image
was generated or substantially synthesized by an AI image model (diffusion, GAN,
or similar) rather than captured by a camera.

Consider rendering artifacts, impossible geometry, texture repetition, text
glitches, lighting inconsistencies, and over-smooth skin or surfaces.

Answer with JSON only: {"ai_probability": <number between 0 and 1>}`

// Verifier is the slower ML classifier consulted when the pre-filter defers.
// It returns the probability in [0, 1] that the image is AI-generated.
type Verifier interface {
	Verify(ctx context.Context, data []byte, mimeType string) (float64, error)
}

// Verdict combines a pre-filter result with an optional ML score.
type Verdict struct {
	PrefilterScore float64        `json:"prefilter_score"`
	MLScore        *float64       `json:"ml_score,omitempty"`
	FinalScore     float64        `json:"final_score"`
	Verified       bool           `json:"ml_verified"`
	IsAI           bool           `json:"is_ai"`
	DetectionLevel DetectionLevel `json:"detection_level"`
}

// CombineScores weights the pre-filter and ML scores (0.3 / 0.7) and clips to [0, 1].
func CombineScores(prefilter, ml float64) float64 {
	return clip01(round3(prefilter*DefaultPrefilterWeight + ml*DefaultMLWeight))
}

// Verify consults v when res asks for ML verification and combines the
// scores. When res does not need verification, or v is nil, the pre-filter
// score stands alone. A verifier error is returned together with the
// unverified verdict so callers can degrade gracefully.
func (cfg *Config) Verify(ctx context.Context, v Verifier, raw []byte, res *AnalysisResult) (*Verdict, error) {
	if !res.OK() {
		return nil, errors.New("aidetect: cannot verify a failed analysis")
	}

	verdict := &Verdict{
		PrefilterScore: res.PrefilterScore,
		FinalScore:     res.PrefilterScore,
		IsAI:           res.PrefilterScore >= aiThreshold,
		DetectionLevel: res.DetectionLevel,
	}
	if !res.NeedsMLVerification || v == nil {
		return verdict, nil
	}

	ml, err := v.Verify(ctx, raw, res.MIMEType())
	if err != nil {
		slog.Debug("aidetect: verifier error", "hash", res.ImageHash, "error", err.Error())
		return verdict, err
	}
	ml = clip01(ml)

	verdict.MLScore = &ml
	verdict.Verified = true
	verdict.FinalScore = CombineScores(res.PrefilterScore, ml)
	verdict.IsAI = verdict.FinalScore >= aiThreshold

	slog.Debug("aidetect: verified", "hash", res.ImageHash, "prefilter", res.PrefilterScore,
		"ml", ml, "final", verdict.FinalScore)
	return verdict, nil
}

var numberRe = regexp.MustCompile(`([-+]?\d*\.?\d+)\s*(%)?`)

// ParseProbability normalizes a verifier reply to a probability in [0, 1].
// Accepts JSON ({"ai_probability": 0.8}), a bare number ("0.8"), or a
// percentage ("80%"). The first number in the reply wins and is scaled only
// when "%" follows it. Returns false when nothing usable is found.
func ParseProbability(resp string) (float64, bool) {
	s := strings.TrimSpace(resp)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.HasPrefix(s, "{") {
		var out struct {
			AIProbability *float64 `json:"ai_probability"`
			Probability   *float64 `json:"probability"`
		}
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			switch {
			case out.AIProbability != nil:
				return clip01(*out.AIProbability), true
			case out.Probability != nil:
				return clip01(*out.Probability), true
			}
		}
		return 0, false
	}

	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	// Only a number written as a percentage is scaled.
	if m[2] != "" {
		f /= 100
	}
	return clip01(f), true
}
