package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// retryLLM retries transient failures with exponential backoff and jitter.
type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries a failed request up to maxRetries times. Only
// errors that IsRetryable accepts are retried; an open circuit or a canceled
// context stops immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: max(maxRetries, 0),
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		text, usage, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return text, usage, nil
		}
		lastErr = err

		if !IsRetryable(err) || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", Usage{}, ctx.Err()
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return "", Usage{}, lastErr
	}
	return "", Usage{}, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// delay returns baseDelay·2^attempt with ±25% jitter, capped at maxDelay.
func (r *retryLLM) delay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	d := r.baseDelay * time.Duration(1<<attempt)
	if d <= 0 {
		return 0
	}
	// #nosec G404 - jitter does not need a secure source
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	d = d - d/4 + jitter
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

func (r *retryLLM) GetModel() string { return r.next.GetModel() }

func (r *retryLLM) Provider() string { return r.next.Provider() }
