// Package config loads the aidetect service settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	aidetect "github.com/anatolykoptev/go-aidetect"
)

// Config is the service configuration.
type Config struct {
	ListenAddr     string
	LogLevel       slog.Level
	RequestTimeout time.Duration

	Heuristics     aidetect.HeuristicConfig
	CacheSize      int // 0 disables caching
	SimilaritySize int // 0 disables near-duplicate warnings

	GeminiAPIKey string
	GeminiModel  string
	InferenceURL string

	TelegramToken string
}

// Load reads .env (if present) and the process environment.
// Malformed numeric values are errors; missing ones take defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:    listenAddr(),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		InferenceURL:  os.Getenv("INFERENCE_URL"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	hc := aidetect.DefaultHeuristicConfig()
	p := parser{}
	maxMB := p.getInt("MAX_FILE_SIZE_MB", int(hc.MaxFileSize/(1024*1024)))
	hc.MaxFileSize = int64(maxMB) * 1024 * 1024
	hc.MaxDimension = p.getInt("MAX_DIMENSION", hc.MaxDimension)
	hc.MinDimension = p.getInt("MIN_DIMENSION", hc.MinDimension)
	hc.ExtremeSharpnessThreshold = p.getFloat("SHARPNESS_THRESHOLD", hc.ExtremeSharpnessThreshold)
	hc.ExtremeSmoothnessThreshold = p.getFloat("SMOOTHNESS_THRESHOLD", hc.ExtremeSmoothnessThreshold)
	hc.VerifyLikelyReal = p.getBool("VERIFY_LIKELY_REAL", false)
	cfg.Heuristics = hc

	cfg.CacheSize = p.getInt("CACHE_SIZE", aidetect.DefaultCacheSize)
	cfg.SimilaritySize = p.getInt("SIMILARITY_SIZE", aidetect.DefaultSimilaritySize)
	cfg.RequestTimeout = p.getDuration("REQUEST_TIMEOUT", 30*time.Second)

	if p.err != nil {
		return nil, p.err
	}
	if maxMB <= 0 || hc.MaxDimension <= 0 || hc.MinDimension <= 0 || hc.MinDimension > hc.MaxDimension {
		return nil, fmt.Errorf("invalid size limits: max %dMB, dimensions %d..%d",
			maxMB, hc.MinDimension, hc.MaxDimension)
	}
	return cfg, nil
}

func listenAddr() string {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":" + getEnv("PORT", "8080")
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (p *parser) getInt(key string, def int) int {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getFloat(key string, def float64) float64 {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getBool(key string, def bool) bool {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}
