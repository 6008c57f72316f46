package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig is the backoff policy for worker calls. The wait before
// attempt n+1 is BaseDelay * 2^(n-1), capped at MaxDelay, plus up to
// Jitter of itself at random.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Retryable replaces IsRetryable when set.
	Retryable func(error) bool
}

// DefaultRetry: three attempts, 1s then 2s, 25% jitter.
var DefaultRetry = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
	Jitter:      0.25,
}

// Delay returns the wait after the given failed attempt (1-based),
// before jitter.
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// jittered lengthens d by a random fraction in [0, jitter).
func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*jitter*rand.Float64())
}

// Retry calls fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is used up. It returns the value, the number of attempts
// made and, on failure, a *CategorizedError wrapping the last error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, &CategorizedError{Err: err, Category: CategoryPermanent, Context: "context cancelled"}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err
		if !retryable(err) {
			return zero, attempt, &CategorizedError{Err: err, Category: Categorize(err), Retries: attempt}
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := jittered(cfg.Delay(attempt), cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Context: "context cancelled during backoff"}
		case <-timer.C:
		}
	}

	return zero, cfg.MaxAttempts, &CategorizedError{
		Err:      lastErr,
		Category: Categorize(lastErr),
		Retries:  cfg.MaxAttempts,
		Context:  "max retries exceeded",
	}
}
