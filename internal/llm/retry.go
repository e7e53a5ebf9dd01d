package llm

import (
	"context"
	"time"
)

// RetryConfig defines retry behavior for streaming calls
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// BackoffDelay returns the delay before retrying after the given attempt:
// BaseDelay * 2^attempt, capped at MaxDelay. No jitter; the delay sequence
// is part of the orchestrator's contract.
func BackoffDelay(attempt int, config RetryConfig) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := config.BaseDelay << uint(attempt)
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// sleepContext waits for d or until ctx is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
