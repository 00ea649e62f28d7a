package aidetect

import (
	"encoding/json"
	"fmt"
)

// Status discriminates a successful analysis from a failed one.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind classifies a failed analysis.
type ErrorKind string

const (
	// ErrorValidation means the input was rejected before analysis. The caller
	// can recover by uploading valid input.
	ErrorValidation ErrorKind = "validation_error"
	// ErrorProcessing means an unexpected failure during scoring. Treat it as a bug.
	ErrorProcessing ErrorKind = "processing_error"
)

// AnalysisError is the error half of an AnalysisResult.
type AnalysisError struct {
	Kind    ErrorKind
	Message string
}

func (e *AnalysisError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ScoreEntry is one scorer's contribution and the reasons it fired.
type ScoreEntry struct {
	Score float64  `json:"score"`
	Flags []string `json:"flags"`
}

// Breakdown maps scorer name to its contribution.
type Breakdown map[string]ScoreEntry

// Dimensions is the decoded image size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AnalysisResult is the outcome of one Analyze call. Exactly one of the
// success fields or Err is meaningful, selected by Status. A result is never
// modified after Analyze returns it; cached results are shared.
type AnalysisResult struct {
	Status Status

	PrefilterScore      float64
	DetectionLevel      DetectionLevel
	NeedsMLVerification bool
	ScoresBreakdown     Breakdown
	Warnings            []string

	ImageHash      string // first 16 hex chars of the SHA-256 of the raw bytes
	PerceptualHash string // dHash, for near-duplicate lookups
	Dimensions     Dimensions
	Format         string
	FileSizeKB     float64
	Recommendation string

	Err *AnalysisError
}

// OK reports whether the analysis succeeded.
func (r *AnalysisResult) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// MIMEType returns the image MIME type derived from the decoder name.
func (r *AnalysisResult) MIMEType() string {
	if r == nil || r.Format == "" {
		return "application/octet-stream"
	}
	return "image/" + r.Format
}

type successJSON struct {
	Status              Status     `json:"status"`
	PrefilterScore      float64    `json:"prefilter_score"`
	DetectionLevel      string     `json:"detection_level"`
	NeedsMLVerification bool       `json:"needs_ml_verification"`
	ScoresBreakdown     Breakdown  `json:"scores_breakdown"`
	Warnings            []string   `json:"warnings"`
	ImageHash           string     `json:"image_hash"`
	PerceptualHash      string     `json:"perceptual_hash,omitempty"`
	Dimensions          Dimensions `json:"dimensions"`
	Format              string     `json:"format"`
	FileSizeKB          float64    `json:"file_size_kb"`
	Recommendation      string     `json:"recommendation"`
}

type errorJSON struct {
	Status       Status    `json:"status"`
	ErrorType    ErrorKind `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
}

// MarshalJSON encodes the success shape or the error shape depending on Status.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if r.Status != StatusSuccess {
		out := errorJSON{Status: StatusError, ErrorType: ErrorProcessing}
		if r.Err != nil {
			out.ErrorType = r.Err.Kind
			out.ErrorMessage = r.Err.Message
		}
		return json.Marshal(out)
	}

	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return json.Marshal(successJSON{
		Status:              StatusSuccess,
		PrefilterScore:      r.PrefilterScore,
		DetectionLevel:      r.DetectionLevel.String(),
		NeedsMLVerification: r.NeedsMLVerification,
		ScoresBreakdown:     r.ScoresBreakdown,
		Warnings:            warnings,
		ImageHash:           r.ImageHash,
		PerceptualHash:      r.PerceptualHash,
		Dimensions:          r.Dimensions,
		Format:              r.Format,
		FileSizeKB:          r.FileSizeKB,
		Recommendation:      r.Recommendation,
	})
}

// LegacyResponse is the response shape of the first detector version, still
// rendered by older clients.
type LegacyResponse struct {
	IsAIProbability float64    `json:"is_ai_probability"`
	Warnings        []string   `json:"warnings"`
	Dimensions      Dimensions `json:"dimensions"`
}

// ToLegacy translates a result into the legacy shape. Failed analyses report
// the error as the only warning and a zero probability.
func (r *AnalysisResult) ToLegacy() LegacyResponse {
	if !r.OK() {
		msg := "analysis failed"
		if r != nil && r.Err != nil {
			msg = fmt.Sprintf("%s: %s", r.Err.Kind, r.Err.Message)
		}
		return LegacyResponse{Warnings: []string{msg}}
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return LegacyResponse{
		IsAIProbability: r.PrefilterScore,
		Warnings:        warnings,
		Dimensions:      r.Dimensions,
	}
}

func errorResult(kind ErrorKind, msg string) *AnalysisResult {
	return &AnalysisResult{
		Status: StatusError,
		Err:    &AnalysisError{Kind: kind, Message: msg},
	}
}
