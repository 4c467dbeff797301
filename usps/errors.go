package usps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Sentinel errors returned by the client plumbing. Endpoint operations
// report expected failures in-band on their results; these sentinels
// surface only where a hard error is the right shape.
var (
	// ErrNotConfigured indicates the client has no base URL or no
	// credentials, from options or the environment.
	ErrNotConfigured = errors.New("usps: client is not configured")

	// ErrTokenRefresh indicates the OAuth token endpoint rejected the
	// credentials or returned an unusable payload.
	ErrTokenRefresh = errors.New("usps: token refresh failed")

	// ErrRateLimited is returned when the local rate limiter rejects
	// a request and WaitOnLimit is disabled.
	ErrRateLimited = errors.New("usps: rate limit exceeded")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("usps: circuit breaker is open")
)

// In-band error descriptions shared across endpoint families. The
// strings are part of the client contract; callers match on them.
const (
	errRequestRequired      = "Request payload is required"
	errInvalidToken         = "Invalid token for USPS API"
	errUnavailable          = "unavailable"
	errPaymentTokenRequired = "Payment authorization token is required"
)

// statusError carries a retryable HTTP status through the retry loop.
// The transport converts retryable status codes into a real error so
// the backoff machinery sees the attempt as failed.
type statusError struct {
	StatusCode int
	RetryAfter string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("usps: received retryable status %d", e.StatusCode)
}

// Result is the common in-band outcome embedded in every endpoint
// response. IsSuccess is false when the operation was refused, the
// upstream call failed, or the response could not be interpreted;
// ErrorDescription then explains why.
type Result struct {
	IsSuccess        bool   `json:"isSuccess"`
	ErrorDescription string `json:"errorDesc"`
}

// fail marks the result unsuccessful with the given description.
func (r *Result) fail(desc string) {
	r.IsSuccess = false
	r.ErrorDescription = desc
}

// extractErrorMessage pulls a human-readable failure description out of
// a USPS error body. The v3 APIs are inconsistent about error shapes,
// so several layouts are probed in order:
//
//   - top-level "error" or "message" string
//   - {"error": {"code": ..., "message": ...}}
//   - {"errors": [{"code": ..., "message"|"detail": ...}, ...]}
//
// Messages from an errors array are joined with "; ". When a code is
// present it prefixes the message as "code: message". If nothing
// matches, the raw body is returned, falling back to the HTTP reason
// phrase.
func extractErrorMessage(body []byte, statusCode int) string {
	fallback := strings.TrimSpace(string(body))
	if fallback == "" {
		fallback = http.StatusText(statusCode)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fallback
	}

	code := stringField(doc, "code", "errorCode")

	if msg := stringField(doc, "error", "message"); msg != "" {
		return prefixCode(code, msg)
	}

	if obj, ok := doc["error"].(map[string]any); ok {
		if code == "" {
			code = stringField(obj, "code", "errorCode")
		}
		if msg := stringField(obj, "message"); msg != "" {
			return prefixCode(code, msg)
		}
	}

	if list, ok := doc["errors"].([]any); ok {
		var parts []string
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			msg := stringField(obj, "message")
			if msg == "" {
				msg = stringField(obj, "detail")
			}
			if msg == "" {
				continue
			}
			parts = append(parts, prefixCode(stringField(obj, "code", "errorCode"), msg))
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	return fallback
}

// stringField returns the first non-blank string value among keys.
func stringField(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok {
			if t := strings.TrimSpace(s); t != "" {
				return t
			}
		}
	}
	return ""
}

func prefixCode(code, msg string) string {
	if code == "" {
		return msg
	}
	return code + ": " + msg
}

// inBandFailure maps a plumbing error to the in-band description an
// operation reports. Token and configuration problems surface as an
// invalid-token failure; everything else uses the per-operation
// fallback.
func inBandFailure(err error, fallback string) string {
	switch {
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrTokenRefresh):
		return errInvalidToken
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errUnavailable
	default:
		return fallback
	}
}

// upstreamFailure extracts an error description from a non-2xx
// response body, falling back to the operation's generic message.
func upstreamFailure(body []byte, statusCode int, fallback string) string {
	if msg := extractErrorMessage(body, statusCode); msg != "" {
		return msg
	}
	return fallback
}
