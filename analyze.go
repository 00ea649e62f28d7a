package aidetect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// Analyze runs the pre-filter on raw image bytes with the Config's thresholds.
//
// Pipeline: cache lookup by content hash → Validate → all scorers (concurrently
// unless Sequential) → Aggregate → Classify → cache store. Concurrent calls
// with identical bytes share one analysis. Analyze never panics and never
// returns nil: every failure is reported as a result with Status error.
func (cfg *Config) Analyze(ctx context.Context, raw []byte) *AnalysisResult {
	return cfg.analyze(ctx, raw, cfg.heuristics(), "")
}

// AnalyzeWith is Analyze with a per-call threshold override. Zero fields of hc
// fall back to DefaultHeuristicConfig. Results are cached separately from
// those produced under the Config's own thresholds.
func (cfg *Config) AnalyzeWith(ctx context.Context, raw []byte, hc HeuristicConfig) *AnalysisResult {
	hc = hc.withDefaults()
	return cfg.analyze(ctx, raw, hc, hc.fingerprint())
}

func (cfg *Config) analyze(ctx context.Context, raw []byte, hc HeuristicConfig, variant string) *AnalysisResult {
	start := time.Now()
	contentHash := ContentHash(raw)
	key := contentHash
	if variant != "" {
		key += "/" + variant
	}

	if cfg.Cache != nil {
		if cached, ok := cfg.Cache.Get(ctx, key); ok {
			cfg.emit(cached, contentHash, true, start)
			return cached
		}
	}

	v, _, _ := cfg.flight.Do(key, func() (any, error) {
		res := cfg.run(raw, contentHash, hc)
		if res.OK() && cfg.Cache != nil {
			cfg.Cache.Put(ctx, key, res)
		}
		return res, nil
	})
	res := v.(*AnalysisResult)

	cfg.emit(res, contentHash, false, start)
	return res
}

// run performs one uncached analysis. Panics anywhere in decoding or scoring
// become processing errors.
func (cfg *Config) run(raw []byte, contentHash string, hc HeuristicConfig) (res *AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			if cfg.OnPanic != nil {
				cfg.OnPanic("analyze", r)
			}
			slog.Error("aidetect: analysis panicked", "hash", ShortHash(contentHash), "panic", r)
			res = errorResult(ErrorProcessing, fmt.Sprintf("unexpected failure: %v", r))
		}
	}()

	img, err := Validate(raw, hc)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return errorResult(ErrorValidation, ve.Msg)
		}
		return errorResult(ErrorProcessing, err.Error())
	}

	scorers := cfg.scorers()
	breakdown, err := cfg.score(scorers, img, hc)
	if err != nil {
		slog.Error("aidetect: scoring failed", "hash", ShortHash(contentHash), "error", err)
		return errorResult(ErrorProcessing, err.Error())
	}

	score := Aggregate(breakdown)
	level, needsML := decide(score, hc)

	warnings := make([]string, 0)
	for _, s := range scorers {
		warnings = append(warnings, breakdown[s.Name()].Flags...)
	}

	res = &AnalysisResult{
		Status:              StatusSuccess,
		PrefilterScore:      score,
		DetectionLevel:      level,
		NeedsMLVerification: needsML,
		ScoresBreakdown:     breakdown,
		ImageHash:           ShortHash(contentHash),
		Dimensions:          Dimensions{Width: img.Width, Height: img.Height},
		Format:              img.Format,
		FileSizeKB:          math.Round(float64(len(raw))/1024*100) / 100,
		Recommendation:      Recommendation(level),
	}

	if phash, err := PerceptualHash(img.Sample()); err == nil {
		res.PerceptualHash = phash.ToString()
		if match, ok := cfg.Similarity.Observe(contentHash, phash); ok {
			warnings = append(warnings, "Near-duplicate of a previously analyzed image ("+ShortHash(match)+")")
		}
	}
	res.Warnings = warnings

	return res
}

// score runs every scorer against img and collects the breakdown.
func (cfg *Config) score(scorers []Scorer, img *DecodedImage, hc HeuristicConfig) (Breakdown, error) {
	entries := make([]ScoreEntry, len(scorers))

	if cfg.Sequential {
		for i, s := range scorers {
			if err := cfg.runScorer(s, img, hc, &entries[i]); err != nil {
				return nil, err
			}
		}
	} else {
		var g errgroup.Group
		for i, s := range scorers {
			g.Go(func() error {
				return cfg.runScorer(s, img, hc, &entries[i])
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	b := make(Breakdown, len(scorers))
	for i, s := range scorers {
		if _, dup := b[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate scorer name %q", s.Name())
		}
		b[s.Name()] = entries[i]
	}
	return b, nil
}

func (cfg *Config) runScorer(s Scorer, img *DecodedImage, hc HeuristicConfig, out *ScoreEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if cfg.OnPanic != nil {
				cfg.OnPanic("scorer:"+s.Name(), r)
			}
			err = fmt.Errorf("%s scorer panicked: %v", s.Name(), r)
		}
	}()

	entry, err := s.Score(img, hc)
	if err != nil {
		return fmt.Errorf("%s scorer: %w", s.Name(), err)
	}
	if entry.Flags == nil {
		entry.Flags = []string{}
	}
	entry.Score = clip01(entry.Score)
	*out = entry
	return nil
}

func (cfg *Config) emit(res *AnalysisResult, contentHash string, cached bool, start time.Time) {
	ev := AnalysisEvent{
		ImageHash: ShortHash(contentHash),
		Status:    res.Status,
		Level:     res.DetectionLevel,
		Score:     res.PrefilterScore,
		Cached:    cached,
		Duration:  time.Since(start),
	}

	if res.OK() {
		slog.Debug("aidetect: analyzed", "hash", ev.ImageHash, "level", ev.Level.String(),
			"score", ev.Score, "cached", cached, "duration", ev.Duration)
	} else {
		slog.Debug("aidetect: rejected", "hash", ev.ImageHash, "error_type", res.Err.Kind,
			"error", res.Err.Message, "duration", ev.Duration)
	}

	if cfg.OnAnalysis != nil {
		cfg.OnAnalysis(ev)
	}
}
