package errors

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	MaxRetries   int           // Retries after the first attempt (0 = single attempt)
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Ceiling for the backoff
	Multiplier   float64       // Backoff growth factor
	Jitter       float64       // Random jitter factor (0-1)
}

// DefaultRetryConfig returns the defaults. Retries are off: every fetch
// gets exactly one attempt unless the caller raises MaxRetries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   0,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Retrier runs operations with bounded exponential backoff.
type Retrier struct {
	config RetryConfig
}

// NewRetrier creates a retrier from config, clamping nonsense values.
func NewRetrier(config RetryConfig) *Retrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &Retrier{config: config}
}

// Do runs fn until it succeeds, the attempts run out, or the failure
// is not worth retrying. The first attempt always runs.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.config.InitialDelay

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt >= r.config.MaxRetries || !Retryable(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(r.withJitter(delay)):
		}

		delay = r.nextDelay(delay)
	}
}

// DoValue runs a value-returning operation through the retry loop.
func DoValue[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var value T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		value, err = fn(ctx)
		return err
	})
	return value, err
}

// withJitter spreads the delay so concurrent workers do not retry in
// lockstep.
func (r *Retrier) withJitter(base time.Duration) time.Duration {
	if r.config.Jitter <= 0 {
		return base
	}

	spread := r.config.Jitter * float64(base)
	offset := (rand.Float64() * 2 * spread) - spread
	return time.Duration(float64(base) + offset)
}

// nextDelay grows the delay for the following retry.
func (r *Retrier) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * r.config.Multiplier)
	if r.config.MaxDelay > 0 && next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}
