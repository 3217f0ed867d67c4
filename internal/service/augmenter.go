package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/logging"
	"github.com/toothsense-analysis-server/internal/metrics"
	"github.com/toothsense-analysis-server/pkg/external"
)

const recommendationPrompt = "As a dental professional, provide treatment recommendations for a patient diagnosed with %s with %s severity. Context: %s. Please provide specific, actionable treatment advice."

var errEmptyRecommendation = errors.New("empty recommendation text")

// AugmentationContext returns the free-text context sent with a
// recommendation request for result.
func AugmentationContext(result domain.UnifiedResult) string {
	prefix := "X-ray analysis"
	if result.ImageKind == domain.ImageKindGumPhoto {
		prefix = "Gum analysis"
	}
	return fmt.Sprintf("%s showing %s with %s severity", prefix, result.PrimaryLabel, result.Severity)
}

// RecommendationPrompt builds the prompt sent to the recommendation
// collaborator.
func RecommendationPrompt(disease string, severity domain.Severity, context string) string {
	return fmt.Sprintf(recommendationPrompt, disease, severity, context)
}

// Augmenter enriches a result with treatment recommendations. It is best
// effort: Augment never fails.
type Augmenter struct {
	client   domain.RecommendationClient
	cache    domain.RecommendationCache
	logger   *logrus.Logger
	recorder *metrics.Recorder
}

// NewAugmenter creates an augmenter. client may be nil, in which case
// Augment returns its input unchanged; cache may be nil.
func NewAugmenter(client domain.RecommendationClient, cache domain.RecommendationCache, logger *logrus.Logger, recorder *metrics.Recorder) *Augmenter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Augmenter{
		client:   client,
		cache:    cache,
		logger:   logger,
		recorder: recorder,
	}
}

// Augment returns a copy of result carrying recommendations, or result
// unchanged when the collaborator cannot provide them. A failure is logged as
// RECOMMENDATION_UNAVAILABLE and never reaches the caller. There is no retry.
func (a *Augmenter) Augment(ctx context.Context, result domain.UnifiedResult, augmentationContext string) domain.UnifiedResult {
	if a == nil {
		return result
	}
	if a.client == nil {
		a.recorder.ObserveRecommendation(metrics.OutcomeSkipped)
		return result
	}

	text, cached, err := a.fetch(ctx, result, augmentationContext)
	if err != nil {
		a.recorder.ObserveRecommendation(metrics.OutcomeFailure)
		a.logger.WithFields(logrus.Fields{
			"code":     domain.ErrRecommendationUnavailable,
			"disease":  result.PrimaryLabel,
			"severity": result.Severity,
			"error":    err.Error(),
		}).Warn("Recommendations unavailable, continuing without them")
		return result
	}

	if cached {
		a.recorder.ObserveRecommendation(metrics.OutcomeCached)
	} else {
		a.recorder.ObserveRecommendation(metrics.OutcomeSuccess)
	}
	return result.WithRecommendations(text)
}

// fetch performs the single recommendation attempt. A cache hit counts as
// the attempt.
func (a *Augmenter) fetch(ctx context.Context, result domain.UnifiedResult, augmentationContext string) (string, bool, error) {
	key := external.CacheKey(result.PrimaryLabel, string(result.Severity), augmentationContext)
	if a.cache != nil {
		if text, ok := a.cache.Get(ctx, key); ok && strings.TrimSpace(text) != "" {
			return text, true, nil
		}
	}

	resp, err := a.client.Recommend(ctx, domain.RecommendationRequest{
		Disease:  result.PrimaryLabel,
		Severity: string(result.Severity),
		Context:  augmentationContext,
		Prompt:   RecommendationPrompt(result.PrimaryLabel, result.Severity, augmentationContext),
	})
	if err != nil {
		return "", false, domain.NewAnalysisError(domain.ErrRecommendationUnavailable, "recommend", err)
	}
	if resp == nil || strings.TrimSpace(resp.Recommendations) == "" {
		return "", false, domain.NewAnalysisError(domain.ErrRecommendationUnavailable, "recommend", errEmptyRecommendation)
	}

	if a.cache != nil {
		a.cache.Set(ctx, key, resp.Recommendations)
	}
	return resp.Recommendations, false, nil
}
