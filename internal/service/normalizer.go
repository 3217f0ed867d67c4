package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/toothsense-analysis-server/internal/domain"
)

// ConfidencePercent converts a ratio in [0,1] to a whole percentage,
// rounding half away from zero.
func ConfidencePercent(ratio float64) int {
	return int(math.Round(ratio * 100))
}

// NormalizeRadiograph converts a radiograph backend response into the unified
// result. The primary detection is the one with the highest confidence; on a
// tie the earliest one wins. Detections keep the backend's order.
func NormalizeRadiograph(raw *domain.RawRadiographResponse) (domain.UnifiedResult, error) {
	const op = "normalize radiograph"

	if raw == nil {
		return domain.UnifiedResult{}, domain.MalformedResponse(op, "empty response")
	}
	if raw.Predictions == nil {
		return domain.UnifiedResult{}, domain.MalformedResponse(op, "missing predictions")
	}

	severity, err := domain.ParseSeverity(raw.Severity)
	if err != nil {
		return domain.UnifiedResult{}, domain.NewAnalysisError(domain.ErrMalformedResponse, op, err)
	}

	detections := make([]domain.Detection, 0, len(raw.Predictions))
	for i, p := range raw.Predictions {
		d, err := toDetection(p)
		if err != nil {
			return domain.UnifiedResult{}, domain.MalformedResponse(op, "prediction %d: %v", i, err)
		}
		detections = append(detections, d)
	}

	result := domain.UnifiedResult{
		ImageKind:      domain.ImageKindRadiograph,
		PrimaryLabel:   domain.NoFindingsLabel,
		Severity:       severity,
		AnnotatedImage: raw.AnnotatedImage,
		AllDetections:  detections,
	}

	if len(detections) > 0 {
		primary := detections[0]
		for _, d := range detections[1:] {
			if d.ConfidenceRatio > primary.ConfidenceRatio {
				primary = d
			}
		}
		result.PrimaryLabel = primary.Label
		result.ConfidencePercent = ConfidencePercent(primary.ConfidenceRatio)
	}

	result.Description = Describe(result.ImageKind, result.PrimaryLabel, result.Severity)
	return result, nil
}

// NormalizeGumPhoto converts a gum-photo backend response into the unified
// result. The response always describes a single implicit candidate.
func NormalizeGumPhoto(raw *domain.RawGumPhotoResponse) (domain.UnifiedResult, error) {
	const op = "normalize gum photo"

	if raw == nil {
		return domain.UnifiedResult{}, domain.MalformedResponse(op, "empty response")
	}
	label := raw.Prediction
	if strings.TrimSpace(label) == "" {
		return domain.UnifiedResult{}, domain.MalformedResponse(op, "missing prediction")
	}
	if raw.Confidence == nil {
		return domain.UnifiedResult{}, domain.MalformedResponse(op, "missing confidence")
	}
	if err := checkRatio(*raw.Confidence); err != nil {
		return domain.UnifiedResult{}, domain.NewAnalysisError(domain.ErrMalformedResponse, op, err)
	}

	severity, err := domain.ParseSeverity(raw.Severity)
	if err != nil {
		return domain.UnifiedResult{}, domain.NewAnalysisError(domain.ErrMalformedResponse, op, err)
	}

	return domain.UnifiedResult{
		ImageKind:         domain.ImageKindGumPhoto,
		PrimaryLabel:      label,
		ConfidencePercent: ConfidencePercent(*raw.Confidence),
		Severity:          severity,
		Description:       Describe(domain.ImageKindGumPhoto, label, severity),
	}, nil
}

func toDetection(p domain.RawPrediction) (domain.Detection, error) {
	label := p.Class
	if strings.TrimSpace(label) == "" {
		return domain.Detection{}, errMissing("class")
	}
	if p.Confidence == nil {
		return domain.Detection{}, errMissing("confidence")
	}
	if err := checkRatio(*p.Confidence); err != nil {
		return domain.Detection{}, err
	}

	d := domain.Detection{Label: label, ConfidenceRatio: *p.Confidence}
	switch len(p.BBox) {
	case 0:
	case 4:
		box := domain.BoundingBox{p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3]}
		d.BoundingBox = &box
	default:
		return domain.Detection{}, errBoundingBox(len(p.BBox))
	}
	return d, nil
}

func checkRatio(ratio float64) error {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", ratio)
	}
	return nil
}

func errMissing(field string) error {
	return fmt.Errorf("missing %s", field)
}

func errBoundingBox(n int) error {
	return fmt.Errorf("bounding box has %d values, want 4", n)
}
