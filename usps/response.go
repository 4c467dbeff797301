package usps

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// Response wraps http.Response with convenience methods for body
// handling and decoding.
//
// Response provides:
//   - Cached body reading (body is read once and reused)
//   - JSON decoding
//   - Success/error status helpers
type Response struct {
	// Response embeds the standard http.Response.
	// All http.Response fields and methods are accessible directly.
	*http.Response

	// body is the cached response body, populated on first call to
	// Body() or String().
	body []byte

	// bodyRead tracks whether the body has been read and cached.
	bodyRead bool
}

// Body returns the response body as bytes.
//
// The body is read and cached on first access. Subsequent calls
// return the cached value.
func (r *Response) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}

	defer r.Response.Body.Close()
	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	r.body = body
	r.bodyRead = true
	return r.body, nil
}

// String returns the response body as a string.
func (r *Response) String() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Decode unmarshals the response body into v as JSON.
func (r *Response) Decode(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the status code is 400 or above.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}
