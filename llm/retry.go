package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff for the Retry wrapper.
//
// The engine itself never retries a provider call; this wrapper exists for
// callers that want backoff around a Provider.
type RetryPolicy struct {
	MaxRetries int           // retry attempts, not counting the initial call
	BaseDelay  time.Duration // wait before the first retry
	MaxDelay   time.Duration // computed waits are capped here
	Multiplier float64       // growth factor between attempts
	Jitter     bool
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns a conservative default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// delayFor picks the wait before retrying err at attempt n (0-indexed). A
// RateLimitError carrying a Retry-After hint replaces the computed backoff;
// when the hint exceeds MaxDelay the second result is false and the caller
// gives up immediately.
func (p RetryPolicy) delayFor(err error, attempt int) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter != nil {
		hint := time.Duration(*rl.RetryAfter * float64(time.Second))
		if hint > p.MaxDelay {
			return 0, false
		}
		return hint, true
	}

	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter {
		// +/- 50%
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	}
	return delay, true
}

// Retry executes fn under the policy. Only errors IsRetryable accepts are
// retried; everything else returns on the first failure.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := fn(ctx)
	for attempt := 0; err != nil && attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}
		delay, ok := policy.delayFor(err, attempt)
		if !ok {
			return zero, err
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}
