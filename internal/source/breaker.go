package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pdq-signal-server/internal/domain"
)

// BreakerSource guards a source with a circuit breaker. Missing tables and
// cancelled loads do not count as failures.
type BreakerSource struct {
	inner   domain.RecordSource
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps inner. Zero config values take defaults.
func NewBreakerSource(inner domain.RecordSource, cfg domain.CircuitBreakerConfig, logger *logrus.Logger) *BreakerSource {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}

	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrMissingTable) ||
				errors.Is(err, context.Canceled)
		},
	}

	return &BreakerSource{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name returns the wrapped source name
func (b *BreakerSource) Name() string {
	return b.inner.Name()
}

// State returns the breaker state
func (b *BreakerSource) State() gobreaker.State {
	return b.breaker.State()
}

// Load delegates to the wrapped source unless the breaker is open
func (b *BreakerSource) Load(ctx context.Context) (*domain.RecordSet, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Load(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("source %s: %w: %w", b.inner.Name(), domain.ErrUnavailable, err)
		}
		return nil, err
	}
	return result.(*domain.RecordSet), nil
}
