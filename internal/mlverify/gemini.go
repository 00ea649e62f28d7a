// Package mlverify provides aidetect.Verifier implementations backed by
// external ML models.
package mlverify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	aidetect "github.com/anatolykoptev/go-aidetect"
)

const geminiAttempts = 3

// Gemini asks a multimodal Gemini model for an AI-generation probability.
type Gemini struct {
	APIKey string
	Model  string

	// Options are appended to the client options (endpoint overrides in tests).
	Options []option.ClientOption

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini returns a Gemini verifier for model.
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (g *Gemini) Verify(ctx context.Context, data []byte, mimeType string) (float64, error) {
	if g.APIKey == "" {
		return 0, errors.New("mlverify: GEMINI_API_KEY is empty")
	}
	cl, err := g.genaiClient(ctx)
	if err != nil {
		return 0, err
	}

	m := cl.GenerativeModel(g.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	parts := []genai.Part{
		genai.Text(aidetect.VerifierPrompt),
		genai.Blob{MIMEType: mimeType, Data: data},
	}

	var resp *genai.GenerateContentResponse
	err = retry(ctx, geminiAttempts, geminiBackoff, func() error {
		var err error
		resp, err = m.GenerateContent(ctx, parts...)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("gemini: %w", err)
	}

	txt := firstText(resp)
	if txt == "" {
		return 0, errors.New("gemini: empty response")
	}
	p, ok := aidetect.ParseProbability(txt)
	if !ok {
		return 0, fmt.Errorf("gemini: unparseable response %q", truncate(txt, 200))
	}
	return p, nil
}

func geminiBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * 300 * time.Millisecond
}

// retry calls fn up to attempts times, waiting backoff(n) after the n-th
// failure. There is no wait after the last one.
func retry(ctx context.Context, attempts int, backoff func(int) time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return err
}

// genaiClient builds the client on first use and reuses it afterwards.
func (g *Gemini) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(g.APIKey)}, g.Options...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g.client = cl
	return cl, nil
}

// Close releases the underlying client, if one was built.
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ aidetect.Verifier = (*Gemini)(nil)
