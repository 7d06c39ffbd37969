package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

const initialBackoff = 200 * time.Millisecond

// WithRetry calls op until it succeeds, maxRetries attempts are used up, or ctx is done.
// The wait between attempts doubles each time.
func WithRetry[T any](ctx context.Context, maxRetries uint, what string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxRetries == 0 {
		maxRetries = 1
	}
	backoff := initialBackoff
	var lastErr error
	for attempt := uint(1); attempt <= maxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		slog.Warn("Retrying", "op", what, "attempt", attempt, "max_retries", maxRetries, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return zero, errors.WithMessage(lastErr, fmt.Sprintf("%s failed after %d attempts", what, maxRetries))
}
