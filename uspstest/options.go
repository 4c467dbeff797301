package uspstest

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// config holds stub server settings.
type config struct {
	accessToken  string
	tokenTTL     time.Duration
	clientID     string
	clientSecret string
	latency      time.Duration
	logger       *zerolog.Logger
	routes       []customRoute
}

type customRoute struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

func defaultConfig() config {
	return config{
		accessToken:  "uspstest-token",
		tokenTTL:     time.Hour,
		clientID:     "uspstest-client",
		clientSecret: "uspstest-secret",
	}
}

// Option configures the stub server.
type Option func(*config)

// WithAccessToken sets the bearer token the stub issues and accepts.
func WithAccessToken(token string) Option {
	return func(c *config) {
		c.accessToken = token
	}
}

// WithTokenTTL sets the expires_in reported by the token endpoint.
// Short TTLs let tests exercise client-side refresh behavior.
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.tokenTTL = ttl
	}
}

// WithClientCredentials sets the credentials the token endpoint
// requires. Token requests with any other client_id or client_secret
// are rejected with invalid_client.
func WithClientCredentials(clientID, clientSecret string) Option {
	return func(c *config) {
		c.clientID = clientID
		c.clientSecret = clientSecret
	}
}

// WithLatency delays every response by d. Useful for timeout and
// cancellation tests.
func WithLatency(d time.Duration) Option {
	return func(c *config) {
		c.latency = d
	}
}

// WithLogger enables request logging through the given zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = &logger
	}
}

// WithHandler registers a custom handler for a method and chi route
// pattern, replacing the canned one if the pattern matches first.
//
// Example:
//
//	srv := uspstest.New(t, uspstest.WithHandler(
//	    http.MethodPost, "/prices/v3/domestic",
//	    func(w http.ResponseWriter, r *http.Request) {
//	        w.WriteHeader(http.StatusServiceUnavailable)
//	    },
//	))
func WithHandler(method, pattern string, handler http.HandlerFunc) Option {
	return func(c *config) {
		c.routes = append(c.routes, customRoute{
			method:  method,
			pattern: pattern,
			handler: handler,
		})
	}
}
