package usps

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/parcelops/usps-go/usps"
)

// internalConfig is the merged client configuration after all options
// are applied.
type internalConfig struct {
	httpConfig Config

	// Endpoint and credentials.
	BaseURL      string
	ClientID     string
	ClientSecret string

	// Token lifecycle.
	TokenSkew     time.Duration
	TokenStore    TokenStore
	OAuthFormBody bool

	// Resilience.
	RetryConfig     RetryConfig
	RetryClassifier RetryClassifier
	RetryBackOff    BackOffFactory
	RateLimitConfig RateLimitConfig
	BreakerConfig   *BreakerConfig

	// Observability.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagators    propagation.TextMapPropagator
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *clientMetrics
	Collector      *Collector

	// Debug output.
	Debug        bool
	DebugLogger  *zerolog.Logger
	GenerateCurl bool

	// Request defaults.
	UserAgent      string
	DefaultHeaders http.Header

	// Transport override, used mostly with MockTransport in tests.
	Transport http.RoundTripper
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:      DefaultConfig(),
		TracerProvider:  otel.GetTracerProvider(),
		MeterProvider:   otel.GetMeterProvider(),
		RetryConfig:     DefaultRetryConfig(),
		RateLimitConfig: RateLimitConfig{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Environment fills whatever explicit options left blank.
	if cfg.BaseURL == "" {
		cfg.BaseURL = resolveBaseURLFromEnvironment()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = envValue(EnvClientID)
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = envValue(EnvClientSecret)
	}

	if cfg.RetryClassifier == nil {
		cfg.RetryClassifier = DefaultClassifier
	}
	if cfg.TokenStore == nil {
		cfg.TokenStore = NewMemoryTokenStore()
	}
	if cfg.Propagators == nil {
		cfg.Propagators = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Initialize metrics (ignore errors, will just be nil if fails)
	cfg.Metrics, _ = newClientMetrics(cfg.Meter)

	return cfg
}

// configured reports whether the client has everything it needs to
// authenticate against the USPS API.
func (cfg *internalConfig) configured() bool {
	return cfg.BaseURL != "" && cfg.ClientID != "" && cfg.ClientSecret != ""
}

// buildTransport creates an http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		ExpectContinueTimeout: hc.ExpectContinueTimeout,
		DisableCompression:    hc.DisableCompression,
		ForceAttemptHTTP2:     hc.ForceHTTP2,
	}
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Option configures the USPS client.
type Option func(*internalConfig)

// WithBaseURL sets the API host explicitly, overriding USPS_BASE_URL
// and USPS_ENV. A trailing slash is appended when missing.
//
// Example:
//
//	client := usps.New(
//	    usps.WithBaseURL("https://apis-tem.usps.com"),
//	)
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = normalizeBaseURL(baseURL)
	}
}

// WithEnvironment selects a well-known USPS host by name.
// EnvironmentTEM targets the Test Environment for Mailers and
// EnvironmentProduction targets the live API. Unrecognized values
// leave the base URL unset, so the client falls back to environment
// variables.
//
// Example:
//
//	client := usps.New(
//	    usps.WithEnvironment(usps.EnvironmentTEM),
//	    usps.WithCredentials(id, secret),
//	)
func WithEnvironment(env Environment) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = env.BaseURL()
	}
}

// WithCredentials sets the OAuth2 client credentials, overriding
// USPS_CLIENT_ID and USPS_CLIENT_SECRET.
func WithCredentials(clientID, clientSecret string) Option {
	return func(cfg *internalConfig) {
		cfg.ClientID = clientID
		cfg.ClientSecret = clientSecret
	}
}

// WithConfig sets the HTTP transport configuration.
// Use DefaultConfig() as a starting point, then customize as needed.
//
// Example:
//
//	cfg := usps.DefaultConfig()
//	cfg.Timeout = 10 * time.Second
//
//	client := usps.New(usps.WithConfig(cfg))
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithTimeout sets the total request timeout without replacing the rest
// of the transport configuration.
func WithTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.Timeout = d
	}
}

// WithRetryConfig sets the retry policy for transient failures.
// Use DefaultRetryConfig(), AggressiveRetryConfig(),
// ConservativeRetryConfig(), or NoRetryConfig() as a starting point.
//
// Example - fail fast in latency-sensitive paths:
//
//	client := usps.New(
//	    usps.WithRetryConfig(usps.RetryConfig{
//	        MaxRetries:      2,
//	        InitialInterval: 100 * time.Millisecond,
//	        Multiplier:      2.0,
//	        MaxJitter:       50 * time.Millisecond,
//	    }),
//	)
func WithRetryConfig(rc RetryConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RetryConfig = rc
	}
}

// WithRetryClassifier overrides which responses and errors count as
// retryable. See RetryClassifier for the contract and DefaultClassifier
// for the default rules.
func WithRetryClassifier(classifier RetryClassifier) Option {
	return func(cfg *internalConfig) {
		cfg.RetryClassifier = classifier
	}
}

// WithRetryBackOff replaces the exponential backoff strategy. The
// factory is called once per request so attempts never share state.
//
// Example - linear growth instead of exponential:
//
//	client := usps.New(
//	    usps.WithRetryBackOff(func() backoff.BackOff {
//	        return &usps.LinearBackOff{
//	            InitialInterval: time.Second,
//	            Increment:       500 * time.Millisecond,
//	            MaxInterval:     10 * time.Second,
//	        }
//	    }),
//	)
func WithRetryBackOff(factory BackOffFactory) Option {
	return func(cfg *internalConfig) {
		cfg.RetryBackOff = factory
	}
}

// WithRateLimit enables client-side rate limiting. USPS enforces
// per-application quotas; limiting locally converts upstream 429s into
// smooth pacing.
//
// Example - 50 requests per second with short bursts:
//
//	client := usps.New(
//	    usps.WithRateLimit(usps.RateLimitConfig{
//	        RequestsPerSecond: 50,
//	        Burst:             10,
//	        WaitOnLimit:       true,
//	    }),
//	)
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimitConfig = rl
	}
}

// WithBreakerConfig enables a circuit breaker in front of the USPS API.
// Use DefaultBreakerConfig() as a starting point. Set a Store to share
// breaker state across instances.
//
// Example:
//
//	bc := usps.DefaultBreakerConfig()
//	bc.Store = usps.NewRedisStore(redisClient)
//
//	client := usps.New(usps.WithBreakerConfig(bc))
func WithBreakerConfig(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets custom context propagators for outgoing
// requests. Defaults to W3C TraceContext plus Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithCollector attaches a Prometheus collector that counts requests,
// retries and token refreshes. Register the collector on your registry
// before serving /metrics.
//
// Example:
//
//	col := usps.NewCollector()
//	prometheus.MustRegister(col)
//
//	client := usps.New(usps.WithCollector(col))
func WithCollector(c *Collector) Option {
	return func(cfg *internalConfig) {
		cfg.Collector = c
	}
}

// WithDebug enables request/response logging to stdout. Authorization
// headers, client secrets and payment authorization tokens are always
// redacted.
func WithDebug() Option {
	return func(cfg *internalConfig) {
		cfg.Debug = true
	}
}

// WithDebugLogger enables debug logging to a caller-supplied zerolog
// logger instead of stdout.
func WithDebugLogger(logger *zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = true
		cfg.DebugLogger = logger
	}
}

// WithGenerateCurl includes a reproduction curl command in debug log
// events. Secrets are redacted in the generated command.
func WithGenerateCurl() Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = true
	}
}

// WithUserAgent sets the User-Agent header on all outgoing requests.
func WithUserAgent(ua string) Option {
	return func(cfg *internalConfig) {
		cfg.UserAgent = ua
	}
}

// WithDefaultHeaders sets headers added to every request. Per-request
// headers take precedence on conflict.
func WithDefaultHeaders(h http.Header) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders = cloneDefaultHeaders(h)
	}
}

// WithTokenSkew switches token freshness to a fixed expiry skew: a
// cached token is reused until expires_in minus skew has elapsed. The
// default instead treats a token as fresh for 70% of its lifetime,
// which refreshes well before busy label batches can race expiry.
func WithTokenSkew(skew time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.TokenSkew = skew
	}
}

// WithTokenStore replaces the in-memory token cache. Use
// NewRedisTokenStore to share one token across replicas.
func WithTokenStore(store TokenStore) Option {
	return func(cfg *internalConfig) {
		cfg.TokenStore = store
	}
}

// WithOAuthFormBody sends the token request as
// application/x-www-form-urlencoded instead of JSON. The USPS token
// endpoint accepts both; some gateway deployments only accept the form
// encoding.
func WithOAuthFormBody() Option {
	return func(cfg *internalConfig) {
		cfg.OAuthFormBody = true
	}
}

// WithTransport replaces the base transport. Retry, breaker, rate
// limiting and tracing still wrap the given transport.
//
// Example - stubbing in tests:
//
//	mock := usps.NewMockTransport()
//	mock.StubResponse(200, `{"quotes":[]}`)
//
//	client := usps.New(
//	    usps.WithTransport(mock),
//	    usps.WithBaseURL("https://apis-tem.usps.com"),
//	    usps.WithCredentials("id", "secret"),
//	)
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = rt
	}
}
