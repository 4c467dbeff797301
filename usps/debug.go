package usps

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// debugLogger is the package-level zerolog logger for debug output.
// WithDebugLogger replaces it per client.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// redactedValue replaces secrets in debug output. Authorization
// headers, payment authorization tokens and client secrets never
// reach logs or generated curl commands.
const redactedValue = "***REDACTED***"

// isSensitiveHeader reports whether a header's value must be redacted
// in debug output.
func isSensitiveHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Authorization", headerPaymentAuthorization, "X-Api-Key":
		return true
	}
	return false
}

// generateCurlCommand creates a cURL command equivalent for the given
// request. The generated command can reproduce the request from the
// command line, with sensitive header values redacted.
//
// Example output:
//
//	curl -X POST 'https://apis.usps.com/prices/v3/domestic' \
//	  -H 'Authorization: ***REDACTED***' \
//	  -H 'Content-Type: application/json' \
//	  -d '{"originZIPCode":"30022"}'
func generateCurlCommand(req *http.Request, body []byte) string {
	var parts []string

	parts = append(parts, "curl")

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	parts = append(parts, fmt.Sprintf("'%s'", req.URL.String()))

	// Headers (sorted for consistent output)
	headerKeys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)

	for _, k := range headerKeys {
		for _, v := range req.Header[k] {
			if isSensitiveHeader(k) {
				v = redactedValue
			}
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		bodyStr := redactSecrets(string(body))
		bodyStr = strings.ReplaceAll(bodyStr, "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", bodyStr))
	}

	return strings.Join(parts, " ")
}

// redactSecrets blanks client_secret values in request bodies. The
// OAuth token request is the only body that carries a secret, in
// either JSON or form encoding.
func redactSecrets(body string) string {
	if !strings.Contains(body, "client_secret") {
		return body
	}
	if strings.HasPrefix(strings.TrimSpace(body), "{") {
		return redactJSONField(body, "client_secret")
	}
	return redactFormField(body, "client_secret")
}

func redactJSONField(body, field string) string {
	marker := `"` + field + `":"`
	idx := strings.Index(body, marker)
	if idx < 0 {
		return body
	}
	start := idx + len(marker)
	end := strings.Index(body[start:], `"`)
	if end < 0 {
		return body
	}
	return body[:start] + redactedValue + body[start+end:]
}

func redactFormField(body, field string) string {
	marker := field + "="
	idx := strings.Index(body, marker)
	if idx < 0 {
		return body
	}
	start := idx + len(marker)
	end := strings.Index(body[start:], "&")
	if end < 0 {
		return body[:start] + redactedValue
	}
	return body[:start] + redactedValue + body[start+end:]
}

// logRequest logs the request details using zerolog.
func logRequest(logger zerolog.Logger, req *http.Request, curl string) {
	ev := logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Str("host", req.Host)
	if curl != "" {
		ev = ev.Str("curl", curl)
	}
	ev.Msg("USPS request")
}

// logResponse logs the response details using zerolog.
func logResponse(logger zerolog.Logger, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Dur("duration_ms", duration).
		Int64("content_length", resp.ContentLength).
		Msg("USPS response")
}
