package usps

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-level rate limiting. USPS enforces
// per-application quotas upstream; pacing locally avoids burning the
// retry budget on predictable 429s.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	// Zero disables rate limiting.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	// This allows brief spikes above the rate limit.
	Burst int

	// WaitOnLimit determines behavior when rate limit is hit.
	// If true, requests wait for a token (respecting context deadline).
	// If false, requests immediately return ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 50 requests per second with a burst
// of 10, waiting when the limit is hit.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// rateLimitTransport implements http.RoundTripper with rate limiting.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

// newRateLimitTransport creates a rate-limited transport wrapper.
func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.wait {
		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, ErrRateLimited
		}
	} else {
		if !t.limiter.Allow() {
			return nil, ErrRateLimited
		}
	}

	return t.next.RoundTrip(req)
}
