package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetryExecutor invokes fallible stage actions with bounded attempts and a
// fixed delay between them. Transient and unclassified errors are retried to
// the attempt cap; configuration and environmental errors fail fast.
type RetryExecutor struct {
	logger zerolog.Logger

	// sleep is swapped out in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryExecutor creates a retry executor.
func NewRetryExecutor(logger zerolog.Logger) *RetryExecutor {
	return &RetryExecutor{
		logger: logger.With().Str("component", "retry").Logger(),
		sleep:  sleepContext,
	}
}

// Execute runs action up to policy.MaxAttempts times, pausing policy.Delay
// between attempts. It returns the number of attempts made and the last error,
// nil on success. Permanent errors abort immediately without further attempts.
func (e *RetryExecutor) Execute(ctx context.Context, action StageAction, policy RetryPolicy) (int, error) {
	if err := policy.Validate(); err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = action(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if IsPermanent(lastErr) {
			e.logger.Debug().
				Err(lastErr).
				Int("attempt", attempt).
				Msg("Permanent error, not retrying")
			return attempt, lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		e.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("delay", policy.Delay).
			Msg("Attempt failed, retrying after delay")

		if err := e.sleep(ctx, policy.Delay); err != nil {
			return attempt, err
		}
	}

	return policy.MaxAttempts, lastErr
}

// sleepContext pauses for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
