package mlverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	aidetect "github.com/anatolykoptev/go-aidetect"
)

// Inference posts the image to an external classifier service and expects
// {"ai_probability": x} back.
type Inference struct {
	URL    string
	Client *http.Client // nil = http.DefaultClient
}

// NewInference returns a verifier for the service at url.
func NewInference(url string) *Inference {
	return &Inference{URL: strings.TrimSpace(url)}
}

func (m *Inference) Verify(ctx context.Context, data []byte, mimeType string) (float64, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image"+extension(mimeType))
	if err != nil {
		return 0, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client().Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result struct {
		AIProbability *float64 `json:"ai_probability"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if result.AIProbability == nil {
		return 0, fmt.Errorf("decode response: missing ai_probability")
	}
	return min(max(*result.AIProbability, 0), 1), nil
}

// CheckHealth calls <URL>/health.
func (m *Inference) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(m.URL, "/")+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (m *Inference) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff":
		return "." + strings.TrimPrefix(mimeType, "image/")
	default:
		return ""
	}
}

var _ aidetect.Verifier = (*Inference)(nil)
