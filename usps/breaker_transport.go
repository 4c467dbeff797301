package usps

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// circuitBreakerTransport wraps requests in a circuit breaker.
type circuitBreakerTransport struct {
	breaker    CircuitBreaker
	next       http.RoundTripper
	classifier BreakerClassifier
	cfg        *internalConfig
	name       string
}

// errSyntheticFailure signals the circuit breaker that a request
// failed (e.g. a 500 status) even though RoundTrip returned no error.
// It is unwrapped by the transport before returning to the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	res, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose

		if t.classifier(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errSyntheticFailure
		}

		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "rejected")
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, t.name)
		}

		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "failure")

		// Unwrap synthetic failure
		if errors.Is(err, errSyntheticFailure) {
			if resp, ok := res.(*http.Response); ok {
				return resp, nil
			}
		}

		return nil, err
	}

	t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "success")

	if resp, ok := res.(*http.Response); ok {
		return resp, nil
	}

	return nil, errors.New("circuit breaker returned unknown response type")
}

// newCircuitBreakerTransport creates a new circuit breaker transport.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}

	const name = "usps-client"

	classifier := cfg.BreakerConfig.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerConfig.MaxRequests,
		Interval:    cfg.BreakerConfig.Interval,
		Timeout:     cfg.BreakerConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.BreakerConfig.FailureThreshold > 0 &&
				counts.Requests < cfg.BreakerConfig.FailureThreshold {
				return false
			}
			if cfg.BreakerConfig.ConsecutiveFailures > 0 &&
				counts.ConsecutiveFailures >= cfg.BreakerConfig.ConsecutiveFailures {
				return true
			}
			if cfg.BreakerConfig.FailureRatio > 0 && counts.TotalFailures > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				if ratio >= cfg.BreakerConfig.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if cfg.Metrics != nil {
				cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			}
			if cfg.BreakerConfig.OnStateChange != nil {
				cfg.BreakerConfig.OnStateChange(name, from, to)
			}
		},
	}

	var cb CircuitBreaker

	if cfg.BreakerConfig.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](cfg.BreakerConfig.Store, st)
		if err != nil {
			// A local breaker still protects this process even when
			// the shared store cannot be initialized.
			cb = gobreaker.NewCircuitBreaker[interface{}](st)
		} else {
			cb = dcb
		}
	} else {
		cb = gobreaker.NewCircuitBreaker[interface{}](st)
	}

	return &circuitBreakerTransport{
		breaker:    cb,
		next:       next,
		classifier: classifier,
		cfg:        cfg,
		name:       name,
	}
}
