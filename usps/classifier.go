package usps

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// RetryClassifier determines if a request should be retried.
// Return true to retry, false to stop immediately.
//
// The classifier receives both the response and error to make decisions.
// Common classification patterns:
//   - Network errors (timeout, connection refused): Retry
//   - 429 Too Many Requests: Retry (honoring Retry-After when present)
//   - 5xx errors: Retry (the USPS backends throw transient 500s under load)
//   - 4xx Client errors: Never retry (request is invalid)
//   - Context cancelled: Never retry (intentional cancellation)
//
// Example classifier that excludes 500 from retries:
//
//	client := usps.New(
//	    usps.WithRetryClassifier(func(resp *http.Response, err error) bool {
//	        if resp != nil && resp.StatusCode == http.StatusInternalServerError {
//	            return false
//	        }
//	        return usps.DefaultClassifier(resp, err)
//	    }),
//	)
type RetryClassifier func(resp *http.Response, err error) bool

// DefaultClassifier applies the retry rules suited to the USPS v3 APIs.
//
// Retries on:
//   - Network errors (timeout, connection refused, DNS errors)
//   - 429 Too Many Requests (rate limiting)
//   - 500 Internal Server Error (transient on the USPS side)
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// Does NOT retry on:
//   - 4xx Client errors (request is invalid, retry won't help)
//   - Context cancellation (intentional cancellation by caller)
//   - Permanent errors (TLS certificate errors, DNS NXDOMAIN, etc.)
//
// Unlike most REST backends, USPS label generation intermittently
// returns plain 500s that succeed on the next attempt, so 500 is
// treated as transient here.
func DefaultClassifier(resp *http.Response, err error) bool {
	if err == nil && resp != nil && resp.StatusCode < 400 {
		return false
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		if isPermanentError(err) {
			return false
		}

		if isRetryableNetworkError(err) {
			return true
		}

		// Unknown error - default to retry for network-level errors
		return true
	}

	if resp != nil {
		return isRetryableStatusCode(resp.StatusCode)
	}

	return false
}

// isRetryableStatusCode returns true for status codes that indicate
// transient failures that may succeed on retry.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429 - Rate limited
		http.StatusInternalServerError, // 500 - Transient on USPS backends
		http.StatusBadGateway,          // 502 - Gateway error
		http.StatusServiceUnavailable,  // 503 - Service temporarily unavailable
		http.StatusGatewayTimeout:      // 504 - Gateway timeout
		return true
	default:
		return false
	}
}

// isRetryableNetworkError returns true for network errors that are
// typically transient and may succeed on retry.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		// Only retry if DNS error is explicitly temporary or timeout.
		// All other DNS errors (including IsNotFound) are permanent.
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) {
		return true
	}

	// Fallback for wrapped errors from third-party libraries.
	return containsTransientPattern(err)
}

func containsTransientPattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is down",
		"network unreachable",
		"i/o timeout",
		"temporary failure",
		"server closed",
		"broken pipe",
		"eof",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// isPermanentError returns true for errors that will not succeed
// on retry and should fail immediately.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	// DNS not found (host doesn't exist - NXDOMAIN)
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) ||
		errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	return containsPermanentPattern(err)
}

func containsPermanentPattern(err error) bool {
	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"x509:",
		"certificate",
		"tls:",
		"protocol error",
		"no route to host",
		"permission denied",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// NeverRetryClassifier returns a classifier that never retries.
// Use when you want to handle retries at a higher level.
func NeverRetryClassifier() RetryClassifier {
	return func(_ *http.Response, _ error) bool {
		return false
	}
}
