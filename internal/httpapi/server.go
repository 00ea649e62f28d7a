// Package httpapi exposes the pre-filter over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	aidetect "github.com/anatolykoptev/go-aidetect"
)

// multipartOverhead is the form-encoding allowance on top of MaxFileSize.
const multipartOverhead = 1 << 20

// Server serves detection requests.
type Server struct {
	detector *aidetect.Config
	verifier aidetect.Verifier // nil = ?verify=true is ignored
	timeout  time.Duration
}

// New returns a Server. timeout bounds each request's analysis and verification.
func New(detector *aidetect.Config, verifier aidetect.Verifier, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{detector: detector, verifier: verifier, timeout: timeout}
}

// Routes returns the router with all endpoints mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detect/image", s.detectImage)
		r.Post("/detect/url", s.detectURL)
		r.Get("/selftest", s.selfTest)
	})
	r.Post("/api/v0/detect/image", s.detectImageLegacy)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// verifiedResponse is returned by the v1 endpoints when ?verify=true.
type verifiedResponse struct {
	Result            *aidetect.AnalysisResult `json:"result"`
	Verification      *aidetect.Verdict        `json:"verification,omitempty"`
	VerificationError string                   `json:"verification_error,omitempty"`
}

func (s *Server) detectImage(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	s.respondAnalysis(w, r, data)
}

type urlRequest struct {
	URL string `json:"url"`
}

func (s *Server) detectURL(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil || req.URL == "" {
		respondFailure(w, aidetect.ErrorValidation, "Request body must be JSON with a non-empty \"url\"", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	dl, err := s.detector.Download(ctx, req.URL, aidetect.DownloadOpts{})
	if err != nil {
		slog.Debug("aidetect: url fetch failed", "url", req.URL, "error", err)
		respondFailure(w, aidetect.ErrorValidation, "Failed to fetch image: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.respondAnalysis(w, r, dl.Data)
}

func (s *Server) detectImageLegacy(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res := s.detector.Analyze(ctx, data)
	respondJSON(w, res.ToLegacy(), statusFor(res))
}

func (s *Server) selfTest(w http.ResponseWriter, r *http.Request) {
	report := s.detector.SelfTest(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusInternalServerError
	}
	respondJSON(w, report, status)
}

// readUpload extracts the multipart "file" field. On failure it has already
// written the response.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	limit := s.detector.Heuristics.MaxFileSize
	if limit <= 0 {
		limit = aidetect.DefaultMaxFileSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondFailure(w, aidetect.ErrorValidation, "Upload too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		respondFailure(w, aidetect.ErrorValidation, "No file uploaded", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	// One byte past the limit is enough for the validator to reject it.
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respondFailure(w, aidetect.ErrorProcessing, "Failed to read file", http.StatusInternalServerError)
		return nil, false
	}
	return data, true
}

func (s *Server) respondAnalysis(w http.ResponseWriter, r *http.Request, data []byte) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res := s.detector.Analyze(ctx, data)
	if verify, _ := strconv.ParseBool(r.URL.Query().Get("verify")); !verify || s.verifier == nil || !res.OK() {
		respondJSON(w, res, statusFor(res))
		return
	}

	out := verifiedResponse{Result: res}
	verdict, err := s.detector.Verify(ctx, s.verifier, data, res)
	out.Verification = verdict
	if err != nil {
		slog.Warn("aidetect: ml verification failed", "hash", res.ImageHash, "error", err)
		out.VerificationError = err.Error()
	}
	respondJSON(w, out, http.StatusOK)
}

func statusFor(res *aidetect.AnalysisResult) int {
	switch {
	case res.OK():
		return http.StatusOK
	case res.Err != nil && res.Err.Kind == aidetect.ErrorValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("aidetect: write response", "error", err)
	}
}

func respondFailure(w http.ResponseWriter, kind aidetect.ErrorKind, msg string, status int) {
	respondJSON(w, map[string]string{
		"status":        string(aidetect.StatusError),
		"error_type":    string(kind),
		"error_message": msg,
	}, status)
}
