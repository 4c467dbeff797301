package usps

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// retryTransport wraps an http.RoundTripper with retry logic.
// It uses the configured backoff strategy and classifier to determine
// when and how to retry failed requests.
type retryTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	classifier RetryClassifier
}

// newRetryTransport creates a new retry transport wrapper.
func newRetryTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.RetryConfig.IsEnabled() {
		return base
	}

	classifier := cfg.RetryClassifier
	if classifier == nil {
		classifier = DefaultClassifier
	}

	return &retryTransport{
		base:       base,
		cfg:        cfg,
		classifier: classifier,
	}
}

// RoundTrip implements http.RoundTripper with automatic retries.
//
// Retryable status codes are converted into errors so the backoff loop
// counts them as failures, but the final response is kept: when the
// retry budget runs out on, say, a persistent 429, the caller receives
// that last response rather than a synthetic error, matching how a
// non-retrying client would see the call.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cfg := t.cfg.RetryConfig

	// Capture request body for potential retries
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	span := trace.SpanFromContext(ctx)

	var (
		lastResp  *http.Response
		attempt   int
		startTime = time.Now()
	)

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(t.getBackoff()),
		backoff.WithMaxTries(cfg.MaxRetries + 1), // +1 because initial attempt is counted
	}

	if cfg.MaxElapsedTime > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(cfg.MaxElapsedTime))
	}

	retryOpts = append(retryOpts, backoff.WithNotify(func(err error, next time.Duration) {
		attempt++
		t.recordRetryEvent(span, attempt, err, next)
		t.cfg.Metrics.recordRetryAttempt(ctx, attempt)
		t.cfg.Collector.retryObserved()
	}))

	resp, lastErr := backoff.Retry(ctx, func() (*http.Response, error) {
		reqClone := t.cloneRequest(req, bodyBytes)

		resp, err := t.base.RoundTrip(reqClone)

		if t.classifier(resp, err) {
			if err != nil {
				lastResp = nil
				return nil, err
			}
			// Retryable status. Keep the response so it can be
			// surfaced if this turns out to be the last attempt.
			lastResp = bufferResponse(resp)
			statusErr := &statusError{
				StatusCode: resp.StatusCode,
				RetryAfter: resp.Header.Get("Retry-After"),
			}
			if delay := parseRetryAfter(resp); delay > 0 {
				return nil, &backoff.RetryAfterError{Duration: delay}
			}
			return nil, statusErr
		}

		if err != nil {
			return nil, backoff.Permanent(err)
		}

		return resp, nil
	}, retryOpts...)

	totalDuration := time.Since(startTime)
	if attempt > 0 {
		span.SetAttributes(
			attribute.Int("http.retry_count", attempt),
			attribute.Bool("http.retry_success", lastErr == nil),
		)

		if lastErr != nil {
			t.cfg.Metrics.recordRetryExhausted(ctx)
		}
	}
	t.cfg.Metrics.recordRetryDuration(ctx, totalDuration)

	// Retries exhausted on a retryable status: hand back the last
	// response instead of an error so status handling stays in-band.
	if lastErr != nil && lastResp != nil {
		return lastResp, nil
	}

	return resp, lastErr
}

// cloneRequest creates a copy of the request with a fresh body.
func (t *retryTransport) cloneRequest(req *http.Request, bodyBytes []byte) *http.Request {
	clone := req.Clone(req.Context())

	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		clone.ContentLength = int64(len(bodyBytes))
	} else if req.GetBody != nil {
		var err error
		clone.Body, err = req.GetBody()
		if err != nil {
			clone.Body = req.Body
		}
	}

	return clone
}

// getBackoff returns the configured backoff strategy.
func (t *retryTransport) getBackoff() backoff.BackOff {
	if t.cfg.RetryBackOff != nil {
		return t.cfg.RetryBackOff()
	}
	return backOffFromConfig(t.cfg.RetryConfig)
}

// bufferResponse reads the body into memory so the response survives
// past the attempt that produced it.
func bufferResponse(resp *http.Response) *http.Response {
	if resp.Body == nil {
		return resp
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = http.NoBody
		return resp
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	return resp
}

// recordRetryEvent adds a span event for the retry attempt.
func (t *retryTransport) recordRetryEvent(
	span trace.Span,
	attempt int,
	err error,
	nextDelay time.Duration,
) {
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", nextDelay.Milliseconds()),
	}

	if err != nil {
		reason := "unknown"
		errStr := err.Error()

		if isRetryableNetworkError(err) {
			reason = "network_error"
		} else if len(errStr) > 0 {
			reason = errStr
			if len(reason) > 50 {
				reason = reason[:50] + "..."
			}
		}

		attrs = append(attrs, attribute.String("retry.reason", reason))

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.AddEvent("http.retry", trace.WithAttributes(attrs...))
}
