package usps

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func spanAttribute(span tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOtelTransport_Spans(t *testing.T) {
	t.Run("given a successful request, then a client span covers it", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer tp.Shutdown(context.Background())

		mt := NewMockTransport()
		stubToken(mt)
		mt.StubPath("/prices/v3/domestic", http.StatusOK,
			`{"quotes":[{"service":"PRIORITY_MAIL","price":9.9}]}`)

		client := newTestClient(t, mt, WithTracerProvider(tp))
		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
			WeightOz:       8,
		})
		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)

		// One span for the token request, one for the price call.
		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		for _, span := range spans {
			assert.Equal(t, "HTTP POST", span.Name)
			assert.Equal(t, trace.SpanKindClient, span.SpanKind)
		}

		priceSpan := spans[1]
		method, ok := spanAttribute(priceSpan, "http.request.method")
		require.True(t, ok)
		assert.Equal(t, "POST", method.AsString())
		status, ok := spanAttribute(priceSpan, "http.response.status_code")
		require.True(t, ok)
		assert.Equal(t, int64(200), status.AsInt64())
	})

	t.Run("given a 400 response, then the span is marked as an error", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer tp.Shutdown(context.Background())

		mt := NewMockTransport()
		stubToken(mt)
		mt.StubPath("/prices/v3/domestic", http.StatusBadRequest,
			`{"error":{"code":"400","message":"invalid ZIP"}}`)

		client := newTestClient(t, mt, WithTracerProvider(tp))
		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "bad",
			DestinationZIP: "10001",
		})
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		priceSpan := spans[1]
		assert.Equal(t, codes.Error, priceSpan.Status.Code)
		errType, ok := spanAttribute(priceSpan, "error.type")
		require.True(t, ok)
		assert.Equal(t, "400", errType.AsString())
	})

	t.Run("given a request, then trace context is injected into headers", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())

		mt := NewMockTransport()
		stubToken(mt)
		mt.StubPath("/prices/v3/domestic", http.StatusOK,
			`{"quotes":[{"service":"PRIORITY_MAIL","price":9.9}]}`)

		client := newTestClient(t, mt, WithTracerProvider(tp))
		_, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
		})
		require.NoError(t, err)

		var priceReq *http.Request
		for _, req := range mt.Requests() {
			if req.URL.Path == "/prices/v3/domestic" {
				priceReq = req
			}
		}
		require.NotNil(t, priceReq)
		assert.NotEmpty(t, priceReq.Header.Get("Traceparent"))
	})
}

func TestOtelTransport_Metrics(t *testing.T) {
	t.Run("given requests, then durations and token refreshes are recorded", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer mp.Shutdown(context.Background())

		mt := NewMockTransport()
		stubToken(mt)
		mt.StubPath("/prices/v3/domestic", http.StatusOK,
			`{"quotes":[{"service":"PRIORITY_MAIL","price":9.9}]}`)

		client := newTestClient(t, mt, WithMeterProvider(mp))
		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
		})
		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		require.Len(t, rm.ScopeMetrics, 1)

		names := make(map[string]bool)
		for _, m := range rm.ScopeMetrics[0].Metrics {
			names[m.Name] = true
		}
		assert.True(t, names["usps.client.request.duration"])
		assert.True(t, names["usps.client.token.refreshes"])
	})
}

func TestClassifyError(t *testing.T) {
	type args struct {
		err error
	}

	tests := []struct {
		name    string
		args    args
		wantVal string
	}{
		{
			name:    "given context deadline exceeded, then returns timeout",
			args:    args{err: context.DeadlineExceeded},
			wantVal: "timeout",
		},
		{
			name:    "given context cancelled, then returns cancelled",
			args:    args{err: context.Canceled},
			wantVal: "cancelled",
		},
		{
			name:    "given wrapped context cancelled, then returns cancelled",
			args:    args{err: errors.Join(errors.New("request failed"), context.Canceled)},
			wantVal: "cancelled",
		},
		{
			name:    "given rate limited, then returns rate_limited",
			args:    args{err: ErrRateLimited},
			wantVal: "rate_limited",
		},
		{
			name:    "given circuit open, then returns circuit_open",
			args:    args{err: ErrCircuitOpen},
			wantVal: "circuit_open",
		},
		{
			name:    "given connection refused, then returns network",
			args:    args{err: errors.New("dial tcp: connection refused")},
			wantVal: "network",
		},
		{
			name:    "given an unclassified error, then returns unknown",
			args:    args{err: errors.New("something odd")},
			wantVal: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantVal, classifyError(tt.args.err))
		})
	}
}
