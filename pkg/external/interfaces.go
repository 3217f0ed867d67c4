package external

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/metrics"
)

var (
	_ domain.InferenceClient      = (*InferenceClient)(nil)
	_ domain.InferenceClient      = (*MockInferenceClient)(nil)
	_ domain.RecommendationClient = (*RecommendationClient)(nil)
	_ domain.RecommendationClient = MockRecommendationClient{}
	_ domain.RecommendationCache  = (*RecommendationCache)(nil)
)

// BreakerReporter is implemented by clients guarded by a circuit breaker.
type BreakerReporter interface {
	BreakerState() gobreaker.State
}

// ServiceHealth represents the health status of one collaborator
type ServiceHealth struct {
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	State     string    `json:"state"`
	LastCheck time.Time `json:"last_check"`
}

// Collaborators bundles the outbound clients used by the analysis service.
// Recommendation and Cache are nil when disabled.
type Collaborators struct {
	Inference      domain.InferenceClient
	Recommendation domain.RecommendationClient
	Cache          domain.RecommendationCache

	cache *RecommendationCache
}

// NewCollaborators wires the clients described by config. With
// inference.mock set both collaborators are served by the mocks. An
// unreachable Redis degrades the cache to its in-memory tier.
func NewCollaborators(config *domain.Config, logger *logrus.Logger, recorder *metrics.Recorder) (*Collaborators, error) {
	logger = orDiscard(logger)
	c := &Collaborators{}

	if config.Inference.Mock {
		logger.Warn("Using mock inference backend")
		c.Inference = NewMockInferenceClient(0)
	} else {
		c.Inference = NewInferenceClient(config.Inference, config.CircuitBreaker, logger, recorder)
	}

	if !config.Recommendation.Enabled {
		return c, nil
	}
	if config.Inference.Mock {
		c.Recommendation = MockRecommendationClient{}
	} else {
		c.Recommendation = NewRecommendationClient(config.Recommendation, config.CircuitBreaker, logger, recorder)
	}

	if config.Cache.Enabled {
		cache, err := NewRecommendationCache(config.Cache, logger)
		if err != nil {
			if config.Cache.RedisURL == "" {
				return nil, err
			}
			logger.WithError(err).Warn("Redis unavailable, recommendation cache is memory-only")
			memoryOnly := config.Cache
			memoryOnly.RedisURL = ""
			if cache, err = NewRecommendationCache(memoryOnly, logger); err != nil {
				return nil, err
			}
		}
		c.cache = cache
		c.Cache = cache
	}

	return c, nil
}

// Health reports the circuit breaker state of every collaborator.
func (c *Collaborators) Health() []ServiceHealth {
	now := time.Now().UTC()
	report := func(name string, client interface{}) ServiceHealth {
		h := ServiceHealth{Service: name, Healthy: true, State: gobreaker.StateClosed.String(), LastCheck: now}
		if r, ok := client.(BreakerReporter); ok {
			state := r.BreakerState()
			h.State = state.String()
			h.Healthy = state != gobreaker.StateOpen
		}
		return h
	}

	out := []ServiceHealth{report(CollaboratorInference, c.Inference)}
	if c.Recommendation != nil {
		out = append(out, report(CollaboratorRecommendation, c.Recommendation))
	}
	return out
}

// Close releases pooled connections.
func (c *Collaborators) Close() error {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	return errors.Join(errs...)
}

func orDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
