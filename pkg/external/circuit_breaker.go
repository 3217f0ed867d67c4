package external

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/toothsense-analysis-server/internal/domain"
	"github.com/toothsense-analysis-server/internal/metrics"
)

// Collaborator names used for breakers, logs and metrics.
const (
	CollaboratorInference      = "inference"
	CollaboratorRecommendation = "recommendation"
)

// newCircuitBreaker builds the breaker guarding one collaborator. It trips
// after FailureThreshold consecutive failures; a cancelled caller does not
// count against the collaborator.
func newCircuitBreaker(name string, cfg domain.CircuitBreakerConfig, logger *logrus.Logger, recorder *metrics.Recorder) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	recorder.SetBreakerState(name, StateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"collaborator": name,
				"from":         from.String(),
				"to":           to.String(),
			}).Warn("Circuit breaker state changed")
			recorder.SetBreakerState(name, StateValue(to))
		},
	})
}

// StateValue maps a breaker state onto the gauge encoding.
func StateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// isBreakerRejection reports whether err came from the breaker itself rather
// than from the guarded call.
func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
