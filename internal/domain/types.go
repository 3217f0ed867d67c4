// Package domain contains the core entities shared by the dental image
// analysis workflow: image kinds, severities, detections, the unified result
// returned to callers and the staged progress model.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ImageKind identifies which inference backend and description table apply
// to an uploaded image.
type ImageKind string

const (
	// ImageKindRadiograph is a dental X-ray.
	ImageKindRadiograph ImageKind = "radiograph"
	// ImageKindGumPhoto is a clinical photo of gums and teeth.
	ImageKindGumPhoto ImageKind = "gum-photo"
)

// Severity is the backend's classification of how advanced a finding is.
// It is never computed locally.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

var (
	ErrUnknownImageKind = errors.New("unknown image kind")
	ErrUnknownSeverity  = errors.New("unknown severity")
)

// ParseImageKind accepts both the domain names and the short wire ids used by
// the upload form ("xray", "gum").
func ParseImageKind(s string) (ImageKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "radiograph", "xray", "x-ray":
		return ImageKindRadiograph, nil
	case "gum-photo", "gum", "gum_photo":
		return ImageKindGumPhoto, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownImageKind, s)
	}
}

// IsValid reports whether k is one of the supported kinds.
func (k ImageKind) IsValid() bool {
	return k == ImageKindRadiograph || k == ImageKindGumPhoto
}

// WireID returns the short identifier used in backend routes and forms.
func (k ImageKind) WireID() string {
	switch k {
	case ImageKindRadiograph:
		return "xray"
	case ImageKindGumPhoto:
		return "gum"
	default:
		return string(k)
	}
}

// DisplayName is the human label used in reports and CLI output.
func (k ImageKind) DisplayName() string {
	switch k {
	case ImageKindRadiograph:
		return "X-Ray Image"
	case ImageKindGumPhoto:
		return "Gum Image"
	default:
		return string(k)
	}
}

// ParseSeverity parses a backend severity label. Only the three known labels
// are accepted.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
	return sev, nil
}

// IsValid reports whether s is low, moderate or high.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityHigh:
		return true
	default:
		return false
	}
}

// RiskLabel returns the risk wording shown next to a severity.
func (s Severity) RiskLabel() string {
	switch s {
	case SeverityLow:
		return "Low Risk"
	case SeverityModerate:
		return "Moderate Risk"
	case SeverityHigh:
		return "High Risk"
	default:
		if s == "" {
			return ""
		}
		return strings.ToUpper(string(s[:1])) + string(s[1:])
	}
}

// BoundingBox is the spatial extent of a detection as reported by the
// radiograph backend.
type BoundingBox [4]float64

// Detection is one candidate finding.
type Detection struct {
	Label           string       `json:"class"`
	ConfidenceRatio float64      `json:"confidence"`
	BoundingBox     *BoundingBox `json:"bbox,omitempty"`
}

// NoFindingsLabel is the primary label of a radiograph with no detections.
const NoFindingsLabel = "No significant findings"

// UnifiedResult is the single result shape produced for every image kind.
// JSON names follow the contract the presentation layer already consumes.
type UnifiedResult struct {
	ImageKind         ImageKind   `json:"image_type"`
	PrimaryLabel      string      `json:"disease"`
	ConfidencePercent int         `json:"confidence"`
	Severity          Severity    `json:"severity"`
	Description       string      `json:"description"`
	Recommendations   string      `json:"recommendations,omitempty"`
	AnnotatedImage    string      `json:"annotated_image,omitempty"`
	AllDetections     []Detection `json:"predictions,omitempty"`
}

// HasRecommendations reports whether augmentation ran and succeeded.
func (r UnifiedResult) HasRecommendations() bool {
	return r.Recommendations != ""
}

// WithRecommendations returns a copy of r carrying text as its
// recommendations. The detections slice is copied so the two values never
// share backing storage.
func (r UnifiedResult) WithRecommendations(text string) UnifiedResult {
	out := r
	if r.AllDetections != nil {
		out.AllDetections = append([]Detection(nil), r.AllDetections...)
	}
	out.Recommendations = text
	return out
}

// Image is an uploaded image awaiting analysis.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
}

// AnalysisRequest pairs an image with its declared kind.
type AnalysisRequest struct {
	ID    string
	Image Image
	Kind  ImageKind
}
