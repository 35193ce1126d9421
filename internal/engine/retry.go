package engine

import (
	"context"
	"time"

	"github.com/dentaflow/verify-engine/internal/db"
)

// RetryPolicy bounds the retry loop: up to MaxRetries attempts, with an
// exponential backoff of Delay * 2^(attempt-1) between them.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy matches the engine defaults: 3 attempts, 1s base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: time.Second}
}

// BackoffDelay returns the wait before attempt+1, where attempt is
// 1-indexed.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	return p.Delay * (1 << (attempt - 1))
}

// withRetry runs fn up to MaxRetries times, sleeping the backoff delay
// between attempts and recording a verification_retry audit event for each
// scheduled retry. The final attempt's error propagates unchanged.
//
// Every failure is retried regardless of its classification. Error codes
// know whether they are transient (Error.Retryable) but the loop does not
// consult that; narrowing retries to transient codes only is a tracked
// behavior change, not something to slip in here.
func (e *Engine) withRetry(ctx context.Context, verificationID string, fn func(ctx context.Context) (*db.VerificationResult, error)) (*db.VerificationResult, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxRetries; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == e.policy.MaxRetries {
			break
		}

		delay := e.policy.BackoffDelay(attempt)
		e.record(ctx, db.EventRetry, verificationID, db.LevelWarn, map[string]any{
			"attempt":     attempt,
			"maxRetries":  e.policy.MaxRetries,
			"nextRetryMs": delay.Milliseconds(),
			"error":       Categorize(err).Code,
		})

		if err := e.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}
