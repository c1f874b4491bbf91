package faults

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Default backoff parameters.
const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1000 * time.Millisecond
	defaultMaxDelay   = 30000 * time.Millisecond
	defaultMultiplier = 2.0
	defaultJitter     = 100 * time.Millisecond
)

// RetryConfig controls the exponential backoff behaviour of
// RetryWithBackoff.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponentially growing delay.
	MaxDelay time.Duration

	// Multiplier grows the delay between successive retries.
	Multiplier float64

	// Jitter adds uniform random delay in [0, Jitter) to each backoff
	// to avoid synchronised retry storms across devices.
	Jitter time.Duration
}

// DefaultRetryConfig returns the standard backoff configuration:
// 3 retries, 1s base, 30s cap, ×2 multiplier, 100ms jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Multiplier: defaultMultiplier,
		Jitter:     defaultJitter,
	}
}

// OnRetryFunc is invoked before each retry. attempt is 1-indexed: the
// first retry reports attempt 1.
type OnRetryFunc func(attempt int, err error)

// RetryWithBackoff executes op, retrying up to cfg.MaxRetries additional
// times on failure with exponential backoff and jitter.
//
// The delay before retry k (0-indexed) is:
//
//	min(BaseDelay × Multiplier^k, MaxDelay) + uniform(0, Jitter)
//
// The context is honoured during backoff waits and passed through to op;
// cancellation aborts the sequence and returns the context error wrapped
// around the last operation error. After exhaustion the last operation
// error is returned, never swallowed.
func RetryWithBackoff[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg RetryConfig, onRetry OnRetryFunc) (T, error) {
	var zero T
	var lastErr error

	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaultMultiplier
	}
	// A zero MaxDelay would clamp every delay to zero.
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// No more retries left.
		if attempt == cfg.MaxRetries {
			break
		}

		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w (last error: %w)", ctx.Err(), lastErr)
		case <-time.After(backoffDelay(cfg, attempt)):
		}
	}

	return zero, lastErr
}

// backoffDelay computes the delay before the retry with 0-indexed k.
func backoffDelay(cfg RetryConfig, k int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(k)))
	if delay > cfg.MaxDelay || delay < 0 {
		delay = cfg.MaxDelay
	}

	if cfg.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.Jitter))) //nolint:gosec // jitter needs no cryptographic randomness
	}

	return delay
}
