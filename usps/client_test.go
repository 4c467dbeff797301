package usps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenBody = `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`

// newTestClient builds a client wired to the mock transport with
// retries disabled. Individual tests re-enable what they exercise.
func newTestClient(t *testing.T, mt *MockTransport, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithTransport(mt),
		WithBaseURL("https://apis-tem.usps.com"),
		WithCredentials("client-id", "client-secret"),
		WithRetryConfig(NoRetryConfig()),
	}
	return New(append(base, opts...)...)
}

// stubToken stubs the OAuth endpoint with a long-lived token.
func stubToken(mt *MockTransport) *MockTransport {
	return mt.StubPath("/oauth2/v3/token", 200, testTokenBody)
}

func TestNew(t *testing.T) {
	t.Run("given full options, then client is configured", func(t *testing.T) {
		client := New(
			WithBaseURL("https://apis-tem.usps.com"),
			WithCredentials("id", "secret"),
		)

		assert.True(t, client.Configured())
		assert.Equal(t, "https://apis-tem.usps.com/", client.BaseURL())
		require.NotNil(t, client.Addresses)
		require.NotNil(t, client.DomesticPrices)
		require.NotNil(t, client.InternationalPrices)
		require.NotNil(t, client.ServiceStandards)
		require.NotNil(t, client.DomesticLabels)
		require.NotNil(t, client.InternationalLabels)
		require.NotNil(t, client.ScanForms)
		require.NotNil(t, client.ShippingOptions)
	})

	t.Run("given no options and no environment, then client is not configured", func(t *testing.T) {
		t.Setenv(EnvBaseURL, "")
		t.Setenv(EnvBaseURLAlias, "")
		t.Setenv(EnvEnvironment, "")
		t.Setenv(EnvClientID, "")
		t.Setenv(EnvClientSecret, "")

		client := New()
		assert.False(t, client.Configured())
	})

	t.Run("given environment variables, then client picks them up", func(t *testing.T) {
		t.Setenv(EnvBaseURL, "https://apis.usps.com")
		t.Setenv(EnvClientID, "env-id")
		t.Setenv(EnvClientSecret, "env-secret")

		client := New()
		assert.True(t, client.Configured())
		assert.Equal(t, "https://apis.usps.com/", client.BaseURL())
	})
}

func TestClient_BearerAuth(t *testing.T) {
	t.Run("given fresh token, then requests carry bearer header", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 200, `{"quotes":[{"service":"Priority Mail","price":8.5}]}`)
		client := newTestClient(t, mt)

		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "20260",
			DestinationZIP: "94105",
			WeightOz:       16,
		})
		require.NoError(t, err)
		require.True(t, result.IsSuccess)

		last := mt.LastRequest()
		assert.Equal(t, "Bearer test-token", last.Header.Get("Authorization"))
	})

	t.Run("given 401 then success, then token is refreshed and request replayed once", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPathSequence("/prices/v3/domestic",
				NewStubResponse(401, `{"error":"token expired"}`, nil),
				NewStubResponse(200, `{"quotes":[{"service":"Priority Mail","price":8.5}]}`, nil),
			)
		client := newTestClient(t, mt)

		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "20260",
			DestinationZIP: "94105",
			WeightOz:       16,
		})
		require.NoError(t, err)
		assert.True(t, result.IsSuccess)

		// Two token calls (initial + refresh) and two price calls.
		priceCalls := 0
		tokenCalls := 0
		for _, req := range mt.Requests() {
			switch req.URL.Path {
			case "/prices/v3/domestic":
				priceCalls++
			case "/oauth2/v3/token":
				tokenCalls++
			}
		}
		assert.Equal(t, 2, priceCalls)
		assert.Equal(t, 2, tokenCalls)
	})

	t.Run("given persistent 401, then failure is reported in-band", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 401, `{"error":"token expired"}`)
		client := newTestClient(t, mt)

		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "20260",
			DestinationZIP: "94105",
			WeightOz:       16,
		})
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
	})
}

func TestClient_CorrelationID(t *testing.T) {
	t.Run("given correlation ID on context, then header carries it", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 200, `{"quotes":[{"service":"Priority Mail","price":8.5}]}`)
		client := newTestClient(t, mt)

		ctx := ContextWithCorrelationID(context.Background(), "corr-1234")
		_, err := client.DomesticPrices.Quote(ctx, &DomesticPriceRequest{
			OriginZIP:      "20260",
			DestinationZIP: "94105",
			WeightOz:       16,
		})
		require.NoError(t, err)

		assert.Equal(t, "corr-1234", mt.LastRequest().Header.Get("X-Correlation-Id"))
	})

	t.Run("given no correlation ID, then a fresh one is generated", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/prices/v3/domestic", 200, `{"quotes":[{"service":"Priority Mail","price":8.5}]}`)
		client := newTestClient(t, mt)

		_, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "20260",
			DestinationZIP: "94105",
			WeightOz:       16,
		})
		require.NoError(t, err)

		assert.NotEmpty(t, mt.LastRequest().Header.Get("X-Correlation-Id"))
	})
}

func TestClient_NotConfigured(t *testing.T) {
	t.Run("given missing credentials, then operations fail in-band with token error", func(t *testing.T) {
		t.Setenv(EnvBaseURL, "")
		t.Setenv(EnvBaseURLAlias, "")
		t.Setenv(EnvEnvironment, "")
		t.Setenv(EnvClientID, "")
		t.Setenv(EnvClientSecret, "")

		client := New(WithTransport(NewMockTransport()))

		result, err := client.DomesticPrices.Quote(context.Background(), &DomesticPriceRequest{
			OriginZIP:      "20260",
			DestinationZIP: "94105",
			WeightOz:       16,
		})
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, "Invalid token for USPS API", result.ErrorDescription)
	})
}
