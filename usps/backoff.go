package usps

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Ensure our backoff strategies implement the backoff.BackOff interface.
var (
	_ backoff.BackOff = (*JitteredExponentialBackOff)(nil)
	_ backoff.BackOff = (*LinearBackOff)(nil)
)

// BackOffFactory produces a fresh backoff strategy for a single request.
// A new strategy per request keeps concurrent retries from sharing
// interval state.
type BackOffFactory func() backoff.BackOff

// JitteredExponentialBackOff grows intervals exponentially and adds a
// uniform random delay on top. This is the default strategy: with
// Initial=200ms, Multiplier=2.0, MaxJitter=250ms the intervals are
//
//	Attempt 1: 200ms + [0, 250ms)
//	Attempt 2: 400ms + [0, 250ms)
//	Attempt 3: 800ms + [0, 250ms)
//
// Additive jitter keeps the floor of each interval intact, so the
// sequence never collapses below the exponential curve the way
// multiplicative jitter can.
type JitteredExponentialBackOff struct {
	// InitialInterval is the first backoff interval.
	InitialInterval time.Duration

	// Multiplier controls exponential growth.
	Multiplier float64

	// MaxInterval caps the base interval before jitter.
	MaxInterval time.Duration

	// MaxJitter bounds the uniform delay added to each interval.
	MaxJitter time.Duration

	// currentInterval tracks the base interval before jitter.
	currentInterval time.Duration
}

// NextBackOff returns the next interval with jitter applied.
func (b *JitteredExponentialBackOff) NextBackOff() time.Duration {
	if b.currentInterval == 0 {
		b.currentInterval = b.InitialInterval
	}

	interval := b.currentInterval

	next := time.Duration(float64(b.currentInterval) * b.Multiplier)
	if b.MaxInterval > 0 && next > b.MaxInterval {
		next = b.MaxInterval
	}
	b.currentInterval = next

	if b.MaxJitter > 0 {
		//nolint:gosec // intentional weak rand for jitter (not cryptographic)
		interval += time.Duration(rand.Int64N(int64(b.MaxJitter)))
	}
	return interval
}

// Reset restarts the interval sequence.
func (b *JitteredExponentialBackOff) Reset() {
	b.currentInterval = 0
}

// LinearBackOff increases interval by a fixed increment plus jitter.
// Use when you want predictable growth without exponential explosion.
//
// Interval calculation: base + (attempt × increment) + jitter
type LinearBackOff struct {
	// InitialInterval is the first backoff interval.
	InitialInterval time.Duration

	// Increment is the fixed amount added to each subsequent interval.
	Increment time.Duration

	// MaxInterval caps the backoff interval.
	MaxInterval time.Duration

	// MaxJitter bounds the uniform delay added to each interval.
	MaxJitter time.Duration

	// currentInterval tracks the current base interval before jitter.
	currentInterval time.Duration
}

// NextBackOff returns the next interval with jitter applied.
func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.currentInterval == 0 {
		b.currentInterval = b.InitialInterval
	}

	interval := b.currentInterval

	next := b.currentInterval + b.Increment
	if b.MaxInterval > 0 && next > b.MaxInterval {
		next = b.MaxInterval
	}
	b.currentInterval = next

	if b.MaxJitter > 0 {
		//nolint:gosec // intentional weak rand for jitter (not cryptographic)
		interval += time.Duration(rand.Int64N(int64(b.MaxJitter)))
	}
	return interval
}

// Reset restarts the interval sequence.
func (b *LinearBackOff) Reset() {
	b.currentInterval = 0
}

// backOffFromConfig builds the default strategy for a RetryConfig.
func backOffFromConfig(cfg RetryConfig) backoff.BackOff {
	return &JitteredExponentialBackOff{
		InitialInterval: cfg.InitialInterval,
		Multiplier:      cfg.Multiplier,
		MaxInterval:     cfg.MaxInterval,
		MaxJitter:       cfg.MaxJitter,
	}
}
