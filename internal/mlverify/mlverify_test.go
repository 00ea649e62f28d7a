package mlverify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestInference_Verify(t *testing.T) {
	var gotName, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotBody, _ = io.ReadAll(file)
		_, _ = w.Write([]byte(`{"ai_probability": 0.91}`))
	}))
	defer srv.Close()

	p, err := NewInference(srv.URL).Verify(context.Background(), []byte("PNGDATA"), "image/png")
	require.NoError(t, err)
	require.InDelta(t, 0.91, p, 1e-9)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "image.png", gotName)
	require.Equal(t, []byte("PNGDATA"), gotBody)
}

func TestInference_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"status", http.StatusBadGateway, "", "status: 502"},
		{"bad json", http.StatusOK, "not json", "decode response"},
		{"missing field", http.StatusOK, `{"label": "ai"}`, "missing ai_probability"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewInference(srv.URL).Verify(context.Background(), []byte("x"), "image/jpeg")
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestInference_Clamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ai_probability": 7}`))
	}))
	defer srv.Close()

	p, err := NewInference(srv.URL).Verify(context.Background(), []byte("x"), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, 1.0, p)
}

func TestInference_CheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewInference(srv.URL).CheckHealth(context.Background()))
	require.Error(t, NewInference(srv.URL+"/nested").CheckHealth(context.Background()))
}

func TestGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini("  ", "gemini-1.5-flash").Verify(context.Background(), []byte("x"), "image/png")
	require.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestFirstText(t *testing.T) {
	require.Empty(t, firstText(nil))
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: nil},
		{Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}, genai.Text(`{"ai_probability": 0.4}`)}}},
	}}
	require.Equal(t, `{"ai_probability": 0.4}`, firstText(resp))
}

func TestRetry(t *testing.T) {
	errBusy := errors.New("busy")

	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantWaits []int
		wantErr   error
	}{
		{"first try", 0, 1, nil, nil},
		{"recovers", 2, 3, []int{1, 2}, nil},
		{"gives up without a final wait", 5, 3, []int{1, 2}, errBusy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			var waits []int
			err := retry(context.Background(), 3, func(attempt int) time.Duration {
				waits = append(waits, attempt)
				return 0
			}, func() error {
				calls++
				if calls <= tc.failures {
					return errBusy
				}
				return nil
			})
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.wantCalls, calls)
			require.Equal(t, tc.wantWaits, waits)
		})
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry(ctx, 3, func(int) time.Duration { return time.Hour }, func() error {
		calls++
		return errors.New("busy")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestGemini_ReusesClient(t *testing.T) {
	g := NewGemini("test-key", "gemini-1.5-flash")
	g.Options = []option.ClientOption{option.WithEndpoint("http://127.0.0.1:1")}

	first, err := g.genaiClient(context.Background())
	require.NoError(t, err)
	second, err := g.genaiClient(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)

	require.NoError(t, g.Close())
	third, err := g.genaiClient(context.Background())
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
}
