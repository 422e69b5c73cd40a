package llm

import (
	"context"
	"errors"
	"time"

	"swarmgov/internal/logging"
)

// ErrMaxRetriesExceeded is returned when all generation attempts fail.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// RetryClient wraps a Client with bounded retry and exponential backoff.
// Transient generation failures are retried transparently; after the attempt
// bound the last error is surfaced wrapped in ErrMaxRetriesExceeded.
type RetryClient struct {
	inner       Client
	maxAttempts int
	baseBackoff time.Duration
}

// NewRetryClient wraps inner with up to maxAttempts attempts. Backoff doubles
// per attempt starting at baseBackoff (1s, 2s, 4s for the defaults).
func NewRetryClient(inner Client, maxAttempts int, baseBackoff time.Duration) *RetryClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	return &RetryClient{inner: inner, maxAttempts: maxAttempts, baseBackoff: baseBackoff}
}

// Complete calls the wrapped client with retries.
func (r *RetryClient) Complete(ctx context.Context, prompt string) (string, error) {
	return r.retry(ctx, func() (string, error) {
		return r.inner.Complete(ctx, prompt)
	})
}

// CompleteWithSystem calls the wrapped client with retries.
func (r *RetryClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return r.retry(ctx, func() (string, error) {
		return r.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	})
}

func (r *RetryClient) retry(ctx context.Context, call func() (string, error)) (string, error) {
	log := logging.Get(logging.CategoryLLM)

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.baseBackoff * time.Duration(1<<uint(attempt-1))
			log.Debug("generation retry %d/%d after %s: %v", attempt+1, r.maxAttempts, backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err

		// Context cancellation is not transient; stop immediately.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
	}

	log.Warn("generation failed after %d attempts: %v", r.maxAttempts, lastErr)
	return "", errors.Join(ErrMaxRetriesExceeded, lastErr)
}
