package usps

import (
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Environments and Base URLs
// =============================================================================

// Environment selects the USPS API host.
type Environment string

const (
	// EnvironmentTEM is the USPS Test Environment for Mailers.
	EnvironmentTEM Environment = "tem"

	// EnvironmentProduction is the live USPS API.
	EnvironmentProduction Environment = "prod"
)

const (
	// BaseURLTEM is the Test Environment for Mailers host.
	BaseURLTEM = "https://apis-tem.usps.com/"

	// BaseURLProduction is the production host.
	BaseURLProduction = "https://apis.usps.com/"
)

// BaseURL returns the host for the environment, or "" when the
// environment is not recognized.
func (e Environment) BaseURL() string {
	switch Environment(strings.ToLower(strings.TrimSpace(string(e)))) {
	case EnvironmentTEM:
		return BaseURLTEM
	case EnvironmentProduction:
		return BaseURLProduction
	default:
		return ""
	}
}

// Environment variables consulted when no explicit configuration is given.
// USPS_BASE_URL wins over USPS_ENV; USPS_API_BASEURL is a legacy alias.
const (
	EnvBaseURL      = "USPS_BASE_URL"
	EnvBaseURLAlias = "USPS_API_BASEURL"
	EnvEnvironment  = "USPS_ENV"
	EnvClientID     = "USPS_CLIENT_ID"
	EnvClientSecret = "USPS_CLIENT_SECRET"
)

// resolveBaseURLFromEnvironment returns the base URL implied by the
// process environment, or "" when nothing usable is set.
func resolveBaseURLFromEnvironment() string {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		return normalizeBaseURL(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURLAlias)); v != "" {
		return normalizeBaseURL(v)
	}
	return Environment(os.Getenv(EnvEnvironment)).BaseURL()
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// normalizeBaseURL trims whitespace and guarantees a trailing slash so
// endpoint paths can be appended directly.
func normalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

// =============================================================================
// Config - HTTP Transport Configuration
// =============================================================================

// Config holds the HTTP transport configuration parameters.
// Use DefaultConfig() to get a properly initialized configuration,
// then modify specific fields as needed.
//
// Example:
//
//	cfg := usps.DefaultConfig()
//	cfg.Timeout = 10 * time.Second
//
//	client := usps.New(
//	    usps.WithConfig(cfg),
//	    usps.WithCredentials(id, secret),
//	)
type Config struct {
	// Timeout specifies a time limit for the entire request lifecycle,
	// including connection, redirects, and reading the response body.
	// A Timeout of zero means no timeout.
	Timeout time.Duration

	// DialTimeout is the maximum time to wait for a TCP connection.
	DialTimeout time.Duration

	// KeepAlive specifies the interval between keep-alive probes.
	KeepAlive time.Duration

	// MaxIdleConns limits the total idle connections across all hosts.
	MaxIdleConns int

	// MaxIdleConnsPerHost limits idle connections per host.
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits total connections per host (0 = unlimited).
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections remain in the pool.
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout limits the TLS handshake duration.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout limits waiting for response headers after
	// the request is fully written.
	ResponseHeaderTimeout time.Duration

	// ExpectContinueTimeout limits waiting for a 100-continue response.
	ExpectContinueTimeout time.Duration

	// DisableCompression disables transparent gzip decompression.
	DisableCompression bool

	// ForceHTTP2 attempts HTTP/2 over TLS connections.
	ForceHTTP2 bool
}

// DefaultConfig returns settings suitable for the USPS APIs: generous
// enough for label generation, which can take several seconds upstream,
// while still bounding the total request lifecycle.
func DefaultConfig() Config {
	return Config{
		Timeout:               100 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceHTTP2:            true,
	}
}

// cloneDefaultHeaders copies h so later mutation of the option map does
// not leak into in-flight requests.
func cloneDefaultHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
