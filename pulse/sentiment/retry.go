package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backoff lists the waits between attempts for each class of retryable error. The number of
// attempts is one more than the longest list.
type Backoff struct {
	RateLimit   []time.Duration
	ServerError []time.Duration
}

// DefaultBackoff waits out a rate-limit window and gives a failing backend a few tries.
func DefaultBackoff() Backoff {
	return Backoff{
		RateLimit:   []time.Duration{65 * time.Second, 100 * time.Second},
		ServerError: []time.Duration{5 * time.Second, 30 * time.Second},
	}
}

// callWithRetry runs call until it succeeds, fails with a non-retryable error or runs out of
// waits. Waiting stops early when ctx is done.
func callWithRetry[T any](ctx context.Context, b Backoff, call func(context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := max(len(b.RateLimit), len(b.ServerError)) + 1
	var rl, se int
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var wait time.Duration
		switch {
		case isRateLimitError(err) && rl < len(b.RateLimit):
			wait = b.RateLimit[rl]
			rl++
		case isServerError(err) && se < len(b.ServerError):
			wait = b.ServerError[se]
			se++
		default:
			return zero, err
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "resource_exhausted")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(s, code) {
			return true
		}
	}
	return strings.Contains(s, "internal server error") ||
		strings.Contains(s, "server_error") ||
		strings.Contains(s, "unavailable")
}
