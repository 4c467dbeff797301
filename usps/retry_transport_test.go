package usps

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetryConfig keeps retry tests quick.
func fastRetryConfig(maxRetries uint) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		MaxJitter:       time.Millisecond,
	}
}

func pricePathCalls(mt *MockTransport) int {
	calls := 0
	for _, req := range mt.Requests() {
		if req.URL.Path == "/prices/v3/domestic" {
			calls++
		}
	}
	return calls
}

func TestRetryTransport(t *testing.T) {
	quotesBody := `{"quotes":[{"service":"Priority Mail","price":8.5}]}`
	priceReq := &DomesticPriceRequest{OriginZIP: "20260", DestinationZIP: "94105", WeightOz: 16}

	t.Run("given 429 twice then 200, then exactly three attempts and success", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPathSequence("/prices/v3/domestic",
				NewStubResponse(429, "", nil),
				NewStubResponse(429, "", nil),
				NewStubResponse(200, quotesBody, nil),
			)
		client := newTestClient(t, mt, WithRetryConfig(fastRetryConfig(5)))

		result, err := client.DomesticPrices.Quote(context.Background(), priceReq)
		require.NoError(t, err)
		assert.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Equal(t, 3, pricePathCalls(mt))
	})

	t.Run("given persistent 500, then budget exhausts and last response surfaces in-band", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 500, `{"error":"internal failure"}`)
		client := newTestClient(t, mt, WithRetryConfig(fastRetryConfig(2)))

		result, err := client.DomesticPrices.Quote(context.Background(), priceReq)
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, "internal failure", result.ErrorDescription)

		// Initial attempt plus two retries.
		assert.Equal(t, 3, pricePathCalls(mt))
	})

	t.Run("given Retry-After header, then retry still proceeds", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Retry-After", "0")

		mt := stubToken(NewMockTransport()).
			StubPathSequence("/prices/v3/domestic",
				NewStubResponse(429, "", headers),
				NewStubResponse(200, quotesBody, nil),
			)
		client := newTestClient(t, mt, WithRetryConfig(fastRetryConfig(3)))

		result, err := client.DomesticPrices.Quote(context.Background(), priceReq)
		require.NoError(t, err)
		assert.True(t, result.IsSuccess)
		assert.Equal(t, 2, pricePathCalls(mt))
	})

	t.Run("given 400 response, then no retry happens", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 400, `{"error":"bad request"}`)
		client := newTestClient(t, mt, WithRetryConfig(fastRetryConfig(3)))

		result, err := client.DomesticPrices.Quote(context.Background(), priceReq)
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, 1, pricePathCalls(mt))
	})

	t.Run("given retries disabled, then single attempt only", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 503, "")
		client := newTestClient(t, mt)

		result, err := client.DomesticPrices.Quote(context.Background(), priceReq)
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, 1, pricePathCalls(mt))
	})
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "given delta seconds, then parsed", value: "2", want: 2 * time.Second},
		{name: "given zero, then zero", value: "0", want: 0},
		{name: "given garbage, then zero", value: "soon", want: 0},
		{name: "given empty, then zero", value: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.value != "" {
				resp.Header.Set("Retry-After", tt.value)
			}
			assert.Equal(t, tt.want, parseRetryAfter(resp))
		})
	}

	t.Run("given HTTP date in the future, then positive duration", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Set("Retry-After", time.Now().Add(3*time.Second).UTC().Format(http.TimeFormat))

		got := parseRetryAfter(resp)
		assert.Greater(t, got, time.Duration(0))
		assert.LessOrEqual(t, got, 3*time.Second)
	})
}
