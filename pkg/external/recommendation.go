package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/metrics"
)

// RecommendationClient calls the recommendation collaborator. Errors are
// plain errors: the caller absorbs them.
type RecommendationClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewRecommendationClient creates a new recommendation collaborator client
func NewRecommendationClient(config domain.RecommendationConfig, cb domain.CircuitBreakerConfig, logger *logrus.Logger, recorder *metrics.Recorder) *RecommendationClient {
	logger = orDiscard(logger)
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}

	return &RecommendationClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   newCircuitBreaker(CollaboratorRecommendation, cb, logger, recorder),
		logger:    logger,
	}
}

// Recommend posts the request to /recommendations/chatgpt.
func (c *RecommendationClient) Recommend(ctx context.Context, request domain.RecommendationRequest) (*domain.RecommendationResponse, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.RecommendationResponse), nil
}

// BreakerState returns the current circuit breaker state.
func (c *RecommendationClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *RecommendationClient) post(ctx context.Context, request domain.RecommendationRequest) (*domain.RecommendationResponse, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := c.baseURL + "/recommendations/chatgpt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out domain.RecommendationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
