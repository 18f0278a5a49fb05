package notion

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls how failed requests are retried.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on the exponential delay
	Jitter      bool          // scale each delay to 50-100%
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the delay before the retry that follows attempt
// (0-indexed). A positive retryAfter from the server replaces the
// exponential delay; jitter applies either way.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := retryAfter
	if delay <= 0 {
		delay = p.BaseDelay
		for i := 0; i < attempt && delay < p.MaxDelay; i++ {
			delay *= 2
		}
		delay = min(delay, p.MaxDelay)
	}
	if p.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// parseRetryAfter reads a Retry-After header given in seconds.
// HTTP-date values and garbage yield 0.
func parseRetryAfter(h http.Header) time.Duration {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
