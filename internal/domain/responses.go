package domain

// RawPrediction is one entry of the radiograph backend's predictions list.
// Confidence is a pointer so a missing field can be told apart from 0.
type RawPrediction struct {
	Class      string    `json:"class"`
	Confidence *float64  `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// RawRadiographResponse is the radiograph backend's response body.
// A nil Predictions slice means the field was missing; an empty non-nil
// slice means the backend found nothing.
type RawRadiographResponse struct {
	Predictions    []RawPrediction `json:"predictions"`
	Severity       string          `json:"severity"`
	ProcessingTime float64         `json:"processing_time,omitempty"`
	AnnotatedImage string          `json:"annotated_image,omitempty"`
}

// RawGumPhotoResponse is the gum-photo backend's response body. It always
// describes exactly one implicit candidate.
type RawGumPhotoResponse struct {
	Prediction string   `json:"prediction"`
	Confidence *float64 `json:"confidence"`
	Severity   string   `json:"severity"`
}

// RecommendationRequest is sent to the recommendation collaborator.
type RecommendationRequest struct {
	Disease  string `json:"disease"`
	Severity string `json:"severity"`
	Context  string `json:"context"`
	Prompt   string `json:"prompt"`
}

// RecommendationResponse is the recommendation collaborator's reply.
type RecommendationResponse struct {
	Recommendations string `json:"recommendations"`
}
