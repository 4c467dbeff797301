package usps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface check.
var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport wraps an http.RoundTripper with OpenTelemetry
// instrumentation. It sits outermost in the chain so spans cover the
// entire retry sequence.
type otelTransport struct {
	base http.RoundTripper
	cfg  *internalConfig
}

// newOtelTransport creates a new instrumented transport.
func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	return &otelTransport{
		base: base,
		cfg:  cfg,
	}
}

// RoundTrip implements http.RoundTripper with tracing and metrics.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	spanName := "HTTP " + req.Method

	ctx, span := t.cfg.Tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)
	defer span.End()

	t.cfg.Propagators.Inject(ctx, propagation.HeaderCarrier(req.Header))

	req = req.WithContext(ctx)

	resp, err := t.base.RoundTrip(req)

	duration := time.Since(start)

	if err != nil {
		errorType := classifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.type", errorType))
		t.cfg.Metrics.recordError(ctx, errorType, nil)
		t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, nil))
		return nil, err
	}

	span.SetAttributes(t.responseAttributes(resp)...)

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", strconv.Itoa(resp.StatusCode)))
	}

	t.cfg.Metrics.recordRequestDuration(ctx, duration, t.metricsAttributes(req, resp))
	t.cfg.Collector.requestObserved(req.URL.Path, resp.StatusCode)

	return resp, nil
}

// requestAttributes returns span attributes for the request.
func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 8)

	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if req.URL != nil {
		attrs = append(attrs, attribute.String("url.full", req.URL.Redacted()))
		attrs = append(attrs, attribute.String("url.scheme", req.URL.Scheme))

		if host := req.URL.Hostname(); host != "" {
			attrs = append(attrs, attribute.String("server.address", host))
		}
		attrs = append(attrs, attribute.Int("server.port", serverPort(req)))
	}

	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}

	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}

	return attrs
}

// responseAttributes returns span attributes for the response.
func (t *otelTransport) responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)

	attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}

	return attrs
}

// metricsAttributes returns attributes for metrics recording.
func (t *otelTransport) metricsAttributes(
	req *http.Request,
	resp *http.Response,
) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)

	attrs = append(attrs, attribute.String("http.request.method", req.Method))

	if req.URL != nil {
		if host := req.URL.Hostname(); host != "" {
			attrs = append(attrs, attribute.String("server.address", host))
		}
		attrs = append(attrs, attribute.Int("server.port", serverPort(req)))
	}

	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= 400 {
			attrs = append(attrs, attribute.String("error.type", strconv.Itoa(resp.StatusCode)))
		}
	}

	return attrs
}

func serverPort(req *http.Request) int {
	if port := req.URL.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			return p
		}
	}
	if req.URL.Scheme == "http" {
		return 80
	}
	return 443
}

// classifyError maps transport errors to semantic error type strings.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case isPermanentError(err):
		return "permanent"
	case isRetryableNetworkError(err):
		return "network"
	default:
		return "unknown"
	}
}
