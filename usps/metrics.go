package usps

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// clientMetrics holds the metric instruments for USPS client operations.
// All record methods are nil-safe so instrumentation can never break a
// request path.
type clientMetrics struct {
	// requestDuration measures the total request duration in seconds.
	// Buckets cover the USPS latency range; label generation can take
	// several seconds.
	requestDuration metric.Float64Histogram

	// requestErrors counts request errors by error type.
	requestErrors metric.Int64Counter

	// retryAttempts counts retry attempts.
	retryAttempts metric.Int64Counter

	// retryExhausted counts requests that exhausted all retries.
	// A high value indicates USPS-side instability.
	retryExhausted metric.Int64Counter

	// retryDuration measures total time spent in the retry loop,
	// including all attempts and wait times.
	retryDuration metric.Float64Histogram

	// tokenRefreshes counts outbound OAuth token requests by outcome.
	tokenRefreshes metric.Int64Counter

	// breakerRequests counts circuit breaker outcomes.
	breakerRequests metric.Int64Counter

	// breakerState records the current breaker state as an integer.
	breakerState metric.Int64Gauge
}

// newClientMetrics creates and registers metric instruments.
func newClientMetrics(meter metric.Meter) (*clientMetrics, error) {
	m := &clientMetrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"usps.client.request.duration",
		metric.WithDescription("Duration of USPS API requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
		),
	)
	if err != nil {
		return nil, err
	}

	m.requestErrors, err = meter.Int64Counter(
		"usps.client.request.errors",
		metric.WithDescription("Number of USPS API request errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryAttempts, err = meter.Int64Counter(
		"usps.client.retry.attempts",
		metric.WithDescription("Number of USPS API retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"usps.client.retry.exhausted",
		metric.WithDescription("Number of USPS API requests that exhausted all retries"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryDuration, err = meter.Float64Histogram(
		"usps.client.retry.duration",
		metric.WithDescription("Total time spent in the retry loop in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
		),
	)
	if err != nil {
		return nil, err
	}

	m.tokenRefreshes, err = meter.Int64Counter(
		"usps.client.token.refreshes",
		metric.WithDescription("Number of OAuth token refresh requests by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerRequests, err = meter.Int64Counter(
		"usps.client.breaker.requests",
		metric.WithDescription("Circuit breaker outcomes for USPS API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge(
		"usps.client.breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=half-open, 2=open)"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// recordRequestDuration records the duration of a USPS API request.
func (m *clientMetrics) recordRequestDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordError records a request error.
func (m *clientMetrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil || m.requestErrors == nil {
		return
	}
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attrs...)
	allAttrs = append(allAttrs, attribute.String("error.type", errorType))
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// recordRetryAttempt records a retry attempt.
func (m *clientMetrics) recordRetryAttempt(ctx context.Context, attempt int) {
	if m == nil || m.retryAttempts == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("retry.attempt", attempt),
	))
}

// recordRetryExhausted records when all retries have been exhausted.
func (m *clientMetrics) recordRetryExhausted(ctx context.Context) {
	if m == nil || m.retryExhausted == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1)
}

// recordRetryDuration records the total time spent in a retry loop.
func (m *clientMetrics) recordRetryDuration(ctx context.Context, duration time.Duration) {
	if m == nil || m.retryDuration == nil {
		return
	}
	m.retryDuration.Record(ctx, duration.Seconds())
}

// recordTokenRefresh records an OAuth token refresh attempt.
func (m *clientMetrics) recordTokenRefresh(ctx context.Context, outcome string) {
	if m == nil || m.tokenRefreshes == nil {
		return
	}
	m.tokenRefreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// recordBreakerRequest records a circuit breaker outcome.
func (m *clientMetrics) recordBreakerRequest(ctx context.Context, name, outcome string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.outcome", outcome),
	))
}

// recordBreakerState records a circuit breaker state change.
func (m *clientMetrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("breaker.name", name),
	))
}
