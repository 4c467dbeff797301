package usps

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis for
// distributed circuit breaking. With a shared store, one replica
// tripping the breaker stops all replicas from hammering USPS.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//
//	bc := usps.DefaultBreakerConfig()
//	bc.Store = usps.NewRedisStore(rdb)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker matches the gobreaker.CircuitBreaker signature.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// BreakerClassifier determines if a request failure should contribute
// to the circuit breaker trip count. Returns true if the error or
// response indicates a system failure (5xx, network error).
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig holds the configuration for the circuit breaker.
//
// Concepts:
//   - Closed: Normal state, requests allowed.
//   - Open: Failing state, requests rejected immediately.
//   - Half-Open: Probing state, limited requests allowed to test recovery.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass
	// through when the circuit breaker is half-open (probing).
	// If 0, the circuit breaker allows 1 request.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for the
	// breaker to clear its internal counts. If 0, counts are never
	// cleared while closed.
	Interval time.Duration

	// Timeout is the period of the open state, after which the
	// breaker becomes half-open.
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests needed
	// before a circuit can be tripped due to failure ratio.
	FailureThreshold uint32

	// FailureRatio is the threshold of failure ratio (0.0 - 1.0)
	// to trip the circuit.
	FailureRatio float64

	// ConsecutiveFailures is the number of consecutive failures that
	// will trip the circuit. If 0, this rule is disabled.
	ConsecutiveFailures uint32

	// Store is the shared data store for distributed circuit
	// breaking. If nil, the circuit breaker is local (in-memory).
	Store gobreaker.SharedDataStore

	// Classifier determines which errors count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is invoked when the breaker state changes.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns a safe default for a local breaker:
// fail fast, recover fast.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DefaultBreakerClassifier counts 5xx responses and network errors as
// failures. 429s are excluded; rate limiting is handled by retry and
// backoff, not by tripping the breaker.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}

	return resp != nil && resp.StatusCode >= 500
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	return false
}
