package usps

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Client is the USPS Web Tools v3 API client. It owns the OAuth token
// lifecycle and the resilient transport chain, and exposes an
// endpoint service per API family.
//
// Create a Client using New():
//
//	client := usps.New(
//	    usps.WithEnvironment(usps.EnvironmentTEM),
//	    usps.WithCredentials(id, secret),
//	)
//
//	result, err := client.Addresses.Standardize(ctx, req)
//
// A Client is safe for concurrent use.
type Client struct {
	// Addresses standardizes and looks up addresses.
	Addresses *AddressesService

	// DomesticPrices quotes domestic postage.
	DomesticPrices *DomesticPricesService

	// InternationalPrices quotes international postage.
	InternationalPrices *InternationalPricesService

	// ServiceStandards looks up delivery commitments.
	ServiceStandards *ServiceStandardsService

	// DomesticLabels creates domestic shipping labels.
	DomesticLabels *DomesticLabelsService

	// InternationalLabels creates and cancels international labels.
	InternationalLabels *InternationalLabelsService

	// ScanForms creates PS Form 3152 scan forms.
	ScanForms *ScanFormsService

	// ShippingOptions quotes and compares shipping options.
	ShippingOptions *ShippingOptionsService

	// httpClient is the underlying HTTP client with transport chain.
	httpClient *http.Client

	// cfg holds all client configuration.
	cfg *internalConfig

	// tokens manages the OAuth token lifecycle.
	tokens *tokenProvider
}

// New creates a Client with production-ready defaults.
//
// The client includes:
//   - OAuth2 client-credentials token caching and refresh
//   - Retry with exponential backoff and jitter
//   - Optional rate limiting and circuit breaking
//   - OpenTelemetry tracing and metrics
//
// Configuration is resolved from explicit options first, then from
// the environment (USPS_BASE_URL or USPS_ENV, USPS_CLIENT_ID,
// USPS_CLIENT_SECRET). A client missing its base URL or credentials
// is still constructed; its operations report the missing
// configuration in-band.
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	var transport http.RoundTripper
	if cfg.Transport != nil {
		transport = cfg.Transport
	} else {
		transport = cfg.buildTransport()
	}

	// Rate limiting sits inside retry so every attempt is paced;
	// the breaker outside retry judges whole call sequences.
	limited := newRateLimitTransport(transport, cfg.RateLimitConfig)
	withRetry := newRetryTransport(limited, cfg)
	withBreaker := newCircuitBreakerTransport(withRetry, cfg)
	instrumented := newOtelTransport(withBreaker, cfg)

	httpClient := &http.Client{
		Transport: instrumented,
		Timeout:   cfg.httpConfig.Timeout,
	}

	c := &Client{
		httpClient: httpClient,
		cfg:        cfg,
	}
	c.tokens = newTokenProvider(cfg, httpClient)

	c.Addresses = &AddressesService{client: c}
	c.DomesticPrices = &DomesticPricesService{client: c}
	c.InternationalPrices = &InternationalPricesService{client: c}
	c.ServiceStandards = &ServiceStandardsService{client: c}
	c.DomesticLabels = &DomesticLabelsService{client: c}
	c.InternationalLabels = &InternationalLabelsService{client: c}
	c.ScanForms = &ScanFormsService{client: c}
	c.ShippingOptions = &ShippingOptionsService{client: c}

	return c
}

// HTTP returns the underlying *http.Client for advanced use cases,
// such as passing it to libraries expecting a plain client. Requests
// made through it share the transport chain but skip bearer auth.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// BaseURL returns the resolved API base URL, always with a trailing
// slash, or "" when unconfigured.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Configured reports whether the client has a base URL and
// credentials.
func (c *Client) Configured() bool {
	return c.cfg.configured()
}

// request creates a new request builder.
func (c *Client) request() *requestBuilder {
	return &requestBuilder{
		client:  c,
		headers: make(http.Header),
	}
}

func (c *Client) logger() zerolog.Logger {
	if c.cfg.DebugLogger != nil {
		return *c.cfg.DebugLogger
	}
	return debugLogger
}
