package aidetect

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxFileSize is the largest accepted upload (20 MiB).
const DefaultMaxFileSize = 20 * 1024 * 1024

// Resolution is a width×height pair.
type Resolution struct {
	Width  int
	Height int
}

// HeuristicConfig holds the thresholds used by the validator and scorers.
// It is a value type: pass a copy per call, never mutate a shared one.
// Zero fields fall back to DefaultHeuristicConfig values.
type HeuristicConfig struct {
	MaxFileSize  int64 // bytes
	MaxDimension int   // px, either side
	MinDimension int   // px, either side

	ExtremeSharpnessThreshold  float64 // edge mean above this = oversharpening
	ExtremeSmoothnessThreshold float64 // luma variance below this = airbrushing
	ExtremeUniformityThreshold float64 // max channel std difference below this = uniform color
	ExtremeSaturationThreshold float64 // mean channel std above this = boosted color

	KnownAIResolutions []Resolution // default generator output sizes
	AISignatures       []string     // lowercase tool names searched in metadata

	// AnalysisMaxSide bounds the longest side of the sample the scorers read.
	AnalysisMaxSide int

	// VerifyLikelyReal requests ML verification for likely_real verdicts too.
	VerifyLikelyReal bool
}

// DefaultHeuristicConfig returns the process-wide default thresholds.
// The numbers are tuned so ordinary camera output does not cross them.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		MaxFileSize:                DefaultMaxFileSize,
		MaxDimension:               8192,
		MinDimension:               32,
		ExtremeSharpnessThreshold:  70.0,
		ExtremeSmoothnessThreshold: 150.0,
		ExtremeUniformityThreshold: 3.0,
		ExtremeSaturationThreshold: 70.0,
		KnownAIResolutions: []Resolution{
			{512, 512}, {768, 768}, {1024, 1024},
			{512, 768}, {768, 512},
			{1024, 1536}, {1536, 1024},
		},
		AISignatures: []string{
			"midjourney",
			"dall-e",
			"dalle",
			"stable diffusion",
			"stablediffusion",
			"dreamstudio",
			"leonardo",
			"firefly",
			"novelai",
			"comfyui",
			"automatic1111",
			"invokeai",
		},
		AnalysisMaxSide: 1024,
	}
}

// withDefaults returns a copy with zero fields filled from DefaultHeuristicConfig.
func (hc HeuristicConfig) withDefaults() HeuristicConfig {
	def := DefaultHeuristicConfig()
	if hc.MaxFileSize <= 0 {
		hc.MaxFileSize = def.MaxFileSize
	}
	if hc.MaxDimension <= 0 {
		hc.MaxDimension = def.MaxDimension
	}
	if hc.MinDimension <= 0 {
		hc.MinDimension = def.MinDimension
	}
	if hc.ExtremeSharpnessThreshold <= 0 {
		hc.ExtremeSharpnessThreshold = def.ExtremeSharpnessThreshold
	}
	if hc.ExtremeSmoothnessThreshold <= 0 {
		hc.ExtremeSmoothnessThreshold = def.ExtremeSmoothnessThreshold
	}
	if hc.ExtremeUniformityThreshold <= 0 {
		hc.ExtremeUniformityThreshold = def.ExtremeUniformityThreshold
	}
	if hc.ExtremeSaturationThreshold <= 0 {
		hc.ExtremeSaturationThreshold = def.ExtremeSaturationThreshold
	}
	if hc.KnownAIResolutions == nil {
		hc.KnownAIResolutions = def.KnownAIResolutions
	}
	if hc.AISignatures == nil {
		hc.AISignatures = def.AISignatures
	}
	if hc.AnalysisMaxSide <= 0 {
		hc.AnalysisMaxSide = def.AnalysisMaxSide
	}
	return hc
}

// Cache memoizes analysis results by key (in-memory map, LRU, Redis, etc.).
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*AnalysisResult, bool)
	Put(ctx context.Context, key string, result *AnalysisResult)
}

// AnalysisEvent describes one completed Analyze call.
type AnalysisEvent struct {
	ImageHash string
	Status    Status
	Level     DetectionLevel
	Score     float64
	Cached    bool
	Duration  time.Duration
}

// Config holds the thresholds and all dependencies injected by the consumer.
// A Config is safe for concurrent use once constructed; do not modify it
// while analyses are running.
type Config struct {
	Heuristics HeuristicConfig // zero value = DefaultHeuristicConfig()

	Cache      Cache            // optional: nil = no caching
	Similarity *SimilarityIndex // optional: nil = no near-duplicate warnings

	// Scorers overrides the scorer set. nil = DefaultScorers().
	Scorers []Scorer

	// Sequential runs scorers one after another instead of concurrently.
	Sequential bool

	StealthClient *http.Client // optional: TLS-fingerprinted client for downloads
	HTTPClient    *http.Client // optional: default http client (nil = a NewPublicClient)
	UserAgent     string       // default: "Mozilla/5.0 (compatible; go-aidetect/1.0)"

	// Optional callbacks for metrics/logging.
	OnPanic    func(tag string, r any)
	OnAnalysis func(AnalysisEvent)

	flight singleflight.Group // collapses concurrent analyses of identical bytes
}

const defaultUserAgent = "Mozilla/5.0 (compatible; go-aidetect/1.0)"

func (cfg *Config) heuristics() HeuristicConfig {
	return cfg.Heuristics.withDefaults()
}

func (cfg *Config) scorers() []Scorer {
	if len(cfg.Scorers) > 0 {
		return cfg.Scorers
	}
	return DefaultScorers()
}

var publicClient = NewPublicClient(0)

func (cfg *Config) httpClient() *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return publicClient
}

func (cfg *Config) userAgent() string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return defaultUserAgent
}
