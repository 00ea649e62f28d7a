// Command aidetect serves the AI-image pre-filter over HTTP and, when
// TELEGRAM_TOKEN is set, through a Telegram bot.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	aidetect "github.com/anatolykoptev/go-aidetect"
	"github.com/anatolykoptev/go-aidetect/internal/config"
	"github.com/anatolykoptev/go-aidetect/internal/httpapi"
	"github.com/anatolykoptev/go-aidetect/internal/mlverify"
	"github.com/anatolykoptev/go-aidetect/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("aidetect: config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detector := newDetector(cfg)
	verifier := newVerifier(cfg)
	if c, ok := verifier.(io.Closer); ok {
		defer c.Close()
	}

	if report := detector.SelfTest(ctx); report.Status != "ok" {
		slog.Error("aidetect: self-test failed", "summary", report.Summary, "tests", report.Tests)
		os.Exit(1)
	}

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, detector, verifier, cfg.RequestTimeout)
		if err != nil {
			slog.Error("aidetect: telegram disabled", "error", err)
		} else {
			go func() {
				if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("aidetect: telegram bot stopped", "error", err)
				}
			}()
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.New(detector, verifier, cfg.RequestTimeout).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("aidetect: listening", "addr", cfg.ListenAddr, "version", aidetect.Version)

	select {
	case <-ctx.Done():
		slog.Info("aidetect: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("aidetect: shutdown", "error", err)
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("aidetect: server error", "error", err)
			os.Exit(1)
		}
	}
}

func newDetector(cfg *config.Config) *aidetect.Config {
	d := &aidetect.Config{
		Heuristics: cfg.Heuristics,
		HTTPClient: aidetect.NewPublicClient(cfg.RequestTimeout),
		OnPanic: func(tag string, r any) {
			slog.Error("aidetect: recovered panic", "tag", tag, "panic", r)
		},
		OnAnalysis: func(ev aidetect.AnalysisEvent) {
			slog.Info("aidetect: analysis", "hash", ev.ImageHash, "status", ev.Status,
				"level", ev.Level.String(), "score", ev.Score, "cached", ev.Cached, "duration", ev.Duration)
		},
	}
	if cfg.CacheSize > 0 {
		d.Cache = aidetect.NewMemoryCache(cfg.CacheSize)
	}
	if cfg.SimilaritySize > 0 {
		d.Similarity = aidetect.NewSimilarityIndex(cfg.SimilaritySize)
	}
	return d
}

// newVerifier prefers the dedicated inference service over Gemini.
func newVerifier(cfg *config.Config) aidetect.Verifier {
	switch {
	case cfg.InferenceURL != "":
		slog.Info("aidetect: ml verifier", "kind", "inference", "url", cfg.InferenceURL)
		return mlverify.NewInference(cfg.InferenceURL)
	case cfg.GeminiAPIKey != "":
		slog.Info("aidetect: ml verifier", "kind", "gemini", "model", cfg.GeminiModel)
		return mlverify.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		slog.Info("aidetect: no ml verifier configured")
		return nil
	}
}
