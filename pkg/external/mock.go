package external

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/toothsense-analysis-server/internal/domain"
)

func ratio(v float64) *float64 { return &v }

// MockInferenceClient returns canned backend responses so the workflow can
// run without the model servers. It is safe for concurrent use.
type MockInferenceClient struct {
	Delay time.Duration
	calls atomic.Int64
}

// NewMockInferenceClient creates a mock backend that answers after delay.
func NewMockInferenceClient(delay time.Duration) *MockInferenceClient {
	return &MockInferenceClient{Delay: delay}
}

// AnalyzeRadiograph returns two detections with a caries finding on top.
func (m *MockInferenceClient) AnalyzeRadiograph(ctx context.Context, _ domain.Image) (*domain.RawRadiographResponse, error) {
	if err := m.wait(ctx, "analyze xray"); err != nil {
		return nil, err
	}
	return &domain.RawRadiographResponse{
		Predictions: []domain.RawPrediction{
			{Class: "Caries", Confidence: ratio(0.87), BBox: []float64{112, 64, 188, 141}},
			{Class: "Crown", Confidence: ratio(0.41), BBox: []float64{240, 70, 310, 150}},
		},
		Severity:       "moderate",
		ProcessingTime: m.Delay.Seconds(),
	}, nil
}

// AnalyzeGumPhoto returns a mild gingivitis finding.
func (m *MockInferenceClient) AnalyzeGumPhoto(ctx context.Context, _ domain.Image) (*domain.RawGumPhotoResponse, error) {
	if err := m.wait(ctx, "analyze gum"); err != nil {
		return nil, err
	}
	return &domain.RawGumPhotoResponse{
		Prediction: "Gingivitis",
		Confidence: ratio(0.92),
		Severity:   "low",
	}, nil
}

// Calls returns how many analyses were requested.
func (m *MockInferenceClient) Calls() int64 {
	return m.calls.Load()
}

// BreakerState always reports closed.
func (m *MockInferenceClient) BreakerState() gobreaker.State {
	return gobreaker.StateClosed
}

func (m *MockInferenceClient) wait(ctx context.Context, op string) error {
	m.calls.Add(1)
	if m.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return domain.NewAnalysisError(domain.ErrTransportFailure, op, ctx.Err())
	}
}

var mockRecommendations = map[string]string{
	"Gingivitis": "1. Improve brushing technique\n2. Use antimicrobial mouthwash\n3. Regular dental cleanings every 6 months\n4. Consider electric toothbrush\n5. Floss daily",
	"Caries":     "1. Schedule immediate dental cleaning\n2. Consider fluoride treatment\n3. Improve daily oral hygiene routine\n4. Reduce sugar intake\n5. Follow up in 3 months",
}

// MockRecommendationClient answers recommendation requests from a small
// table, with a generic answer for anything else.
type MockRecommendationClient struct{}

// Recommend returns the canned recommendation for the disease.
func (MockRecommendationClient) Recommend(_ context.Context, request domain.RecommendationRequest) (*domain.RecommendationResponse, error) {
	text, ok := mockRecommendations[request.Disease]
	if !ok {
		text = "1. Maintain twice-daily brushing and daily flossing\n2. Book a dental check-up to confirm the finding"
	}
	return &domain.RecommendationResponse{Recommendations: text}, nil
}

// BreakerState always reports closed.
func (MockRecommendationClient) BreakerState() gobreaker.State {
	return gobreaker.StateClosed
}
