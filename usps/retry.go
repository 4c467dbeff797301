package usps

import (
	"net/http"
	"strconv"
	"time"
)

// RetryConfig holds the retry behavior configuration.
// Use DefaultRetryConfig() for balanced defaults, then modify as needed.
//
// The retry mechanism uses exponential backoff with additive jitter to
// prevent "thundering herd" problems when multiple clients retry
// simultaneously.
//
// Key concepts:
//   - MaxRetries: Maximum number of retry attempts (0 = disabled)
//   - MaxElapsedTime: Total time budget for all retries combined.
//     If retrying would exceed this budget, the retry loop stops.
//   - MaxJitter: Upper bound of the random delay added to each interval.
//     A uniform value in [0, MaxJitter) is added on top of the
//     exponential interval, desynchronizing retries across clients.
//
// A 429 response carrying a Retry-After header overrides the computed
// interval: the client waits at least as long as the server asked.
//
// Example usage:
//
//	cfg := usps.DefaultRetryConfig()
//	cfg.MaxRetries = 3
//	client := usps.New(usps.WithRetryConfig(cfg))
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Set to 0 to disable retries entirely.
	// The initial request is not counted as a retry.
	// Default: 5
	MaxRetries uint

	// InitialInterval is the first backoff interval before any retries.
	// Subsequent intervals grow exponentially based on Multiplier.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Even with exponential growth, intervals never exceed this value.
	// Default: 30s
	MaxInterval time.Duration

	// MaxElapsedTime is the total time budget for the entire retry
	// sequence. Set to 0 for no time limit (only MaxRetries applies).
	// Default: 2m
	MaxElapsedTime time.Duration

	// Multiplier controls exponential growth of backoff intervals.
	// Each retry interval = previous interval × Multiplier.
	// Default: 2.0
	//
	// Example with InitialInterval=200ms, Multiplier=2.0:
	//   Retry 1: 200ms → Retry 2: 400ms → Retry 3: 800ms
	Multiplier float64

	// MaxJitter bounds the uniform random delay added to each interval.
	// Default: 250ms
	MaxJitter time.Duration
}

// Default values for RetryConfig.
const (
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
	DefaultMaxElapsedTime  = 2 * time.Minute
	DefaultMultiplier      = 2.0
	DefaultMaxJitter       = 250 * time.Millisecond
)

// DefaultRetryConfig returns the policy tuned for the USPS APIs:
// 5 retries starting at 200ms and doubling, with up to 250ms of
// additive jitter per attempt and a 2 minute total budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Multiplier:      DefaultMultiplier,
		MaxJitter:       DefaultMaxJitter,
	}
}

// ConservativeRetryConfig returns a policy for latency-sensitive
// paths: 2 retries with a 30 second total budget.
func ConservativeRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		Multiplier:      2.0,
		MaxJitter:       100 * time.Millisecond,
	}
}

// NoRetryConfig returns configuration that disables retries entirely.
//
// Use this when:
//   - The operation is not idempotent end to end
//   - You want to handle retries at a higher level
//   - Testing without retry interference
func NoRetryConfig() RetryConfig {
	return RetryConfig{}
}

// IsEnabled returns true if retries are enabled.
func (c RetryConfig) IsEnabled() bool {
	return c.MaxRetries > 0
}

// parseRetryAfter extracts the server-requested delay from a response.
// Both delta-seconds and HTTP-date forms are supported. Returns 0 when
// the header is absent or unparseable.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(h, 10, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
