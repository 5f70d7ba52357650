package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
)

const (
	// Guard defaults: a backend call never runs longer than callTimeout,
	// transient failures retry up to maxAttempts with exponential
	// backoff, and five consecutive failures open the breaker for
	// breakerCooldown.
	callTimeout     = 10 * time.Second
	maxAttempts     = 3
	initialBackoff  = 100 * time.Millisecond
	backoffFactor   = 4.0
	breakerTrip     = 5
	breakerCooldown = 30 * time.Second
)

type searchFunc func(ctx context.Context) ([]models.SearchResult, error)

// Guard wraps one backend's calls with timeout, bounded retry, and a
// circuit breaker. Callers see faults with backend-neutral messages.
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewGuard creates a guard for the named backend.
func NewGuard(name string) *Guard {
	return &Guard{
		name: name,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTrip
			},
		}),
	}
}

// Open reports whether the breaker currently rejects calls.
func (g *Guard) Open() bool {
	return g.breaker.State() == gobreaker.StateOpen
}

// Search runs fn through the breaker with retry and a per-call timeout.
func (g *Guard) Search(ctx context.Context, fn searchFunc) ([]models.SearchResult, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return g.withRetry(ctx, fn)
	})
	if err != nil {
		return nil, g.classify(err)
	}
	results, _ := out.([]models.SearchResult)
	return results, nil
}

// withRetry retries transient failures with exponential backoff.
// Context cancellation and non-transient faults stop immediately.
func (g *Guard) withRetry(ctx context.Context, fn searchFunc) ([]models.SearchResult, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackoff(), maxAttempts-1), ctx)

	var results []models.SearchResult
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		var err error
		results, err = fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !faults.Transient(g.classify(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return results, nil
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.Multiplier = backoffFactor
	b.RandomizationFactor = 0
	b.MaxInterval = initialBackoff * 16
	return b
}

// classify maps raw backend errors to faults without leaking hostnames
// or driver details to the caller.
func (g *Guard) classify(err error) error {
	var f *faults.Error
	switch {
	case errors.As(err, &f):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return faults.New(faults.KindBackendUnavailable, "%s backend unavailable", g.name)
	case errors.Is(err, context.DeadlineExceeded):
		return faults.New(faults.KindBackendTimeout, "%s backend timed out", g.name)
	case errors.Is(err, context.Canceled):
		return faults.New(faults.KindCancelled, "%s backend call cancelled", g.name)
	default:
		return faults.New(faults.KindBackendTimeout, "%s backend request failed", g.name)
	}
}

func errBackendAbsent(name models.Backend) error {
	return faults.New(faults.KindBackendUnavailable, "%s backend is not configured", name)
}
