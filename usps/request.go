package usps

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	headerCorrelationID        = "X-Correlation-Id"
	headerPaymentAuthorization = "X-Payment-Authorization-Token"
	headerTrackingNumber       = "X-Tracking-Number"
)

type correlationIDKey struct{}

// ContextWithCorrelationID attaches a correlation ID to the context.
// Requests carrying the context forward the ID as X-Correlation-Id;
// without one, the client generates a fresh UUID per request.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func correlationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// requestBuilder provides a fluent API for constructing API requests.
// Endpoint services create builders through Client.request().
type requestBuilder struct {
	client      *Client
	path        string
	pathParams  map[string]string
	queryParams url.Values
	headers     http.Header
	body        io.Reader
	bodyBytes   []byte
	contentType string
	accept      string
	skipAuth    bool
	bodyErr     error
}

// Path sets the request path, relative to the client base URL. Path
// parameters use {name} syntax and are filled with PathParam.
func (rb *requestBuilder) Path(path string) *requestBuilder {
	rb.path = path
	return rb
}

// PathParam sets a path parameter value. The value is URL-escaped.
func (rb *requestBuilder) PathParam(key, value string) *requestBuilder {
	if rb.pathParams == nil {
		rb.pathParams = make(map[string]string)
	}
	rb.pathParams[key] = value
	return rb
}

// Query adds a single query parameter.
func (rb *requestBuilder) Query(key, value string) *requestBuilder {
	if rb.queryParams == nil {
		rb.queryParams = make(url.Values)
	}
	rb.queryParams.Set(key, value)
	return rb
}

// Header sets a single request header.
func (rb *requestBuilder) Header(key, value string) *requestBuilder {
	rb.headers.Set(key, value)
	return rb
}

// Accept sets the Accept header.
func (rb *requestBuilder) Accept(accept string) *requestBuilder {
	rb.accept = accept
	return rb
}

// PaymentToken sets the X-Payment-Authorization-Token header. The
// value never appears in logs or generated curl commands.
func (rb *requestBuilder) PaymentToken(token string) *requestBuilder {
	if token != "" {
		rb.headers.Set(headerPaymentAuthorization, token)
	}
	return rb
}

// BodyJSON marshals v as the JSON request body. Marshal errors are
// deferred and surface from the terminal method.
func (rb *requestBuilder) BodyJSON(v any) *requestBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		rb.bodyErr = err
		return rb
	}
	rb.bodyBytes = data
	rb.body = bytes.NewReader(data)
	rb.contentType = "application/json"
	return rb
}

// Get executes a GET request.
func (rb *requestBuilder) Get(ctx context.Context, path ...string) (*Response, error) {
	if len(path) > 0 {
		rb.path = path[0]
	}
	return rb.execute(ctx, http.MethodGet)
}

// Post executes a POST request.
func (rb *requestBuilder) Post(ctx context.Context, path ...string) (*Response, error) {
	if len(path) > 0 {
		rb.path = path[0]
	}
	return rb.execute(ctx, http.MethodPost)
}

// Delete executes a DELETE request.
func (rb *requestBuilder) Delete(ctx context.Context, path ...string) (*Response, error) {
	if len(path) > 0 {
		rb.path = path[0]
	}
	return rb.execute(ctx, http.MethodDelete)
}

// execute sends the request with bearer auth and one replay on 401.
//
// A 401 means the cached token went stale between freshness check and
// arrival at USPS. The token is invalidated, refreshed once, and the
// request replayed with the new bearer. A second 401 is returned as-is
// so a genuinely rejected credential cannot loop.
func (rb *requestBuilder) execute(ctx context.Context, method string) (*Response, error) {
	if rb.bodyErr != nil {
		return nil, rb.bodyErr
	}

	targetURL, err := rb.buildURL()
	if err != nil {
		return nil, err
	}

	var bearer string
	if !rb.skipAuth {
		bearer, err = rb.client.tokens.bearer(ctx)
		if err != nil {
			return nil, err
		}
	}

	resp, err := rb.send(ctx, method, targetURL, bearer)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !rb.skipAuth {
		drainBody(resp.Response)
		rb.client.tokens.invalidate(ctx)

		bearer, err = rb.client.tokens.bearer(ctx)
		if err != nil {
			return nil, err
		}

		resp, err = rb.send(ctx, method, targetURL, bearer)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// send performs a single attempt.
func (rb *requestBuilder) send(ctx context.Context, method, targetURL, bearer string) (*Response, error) {
	cfg := rb.client.cfg

	var body io.Reader
	if rb.bodyBytes != nil {
		body = bytes.NewReader(rb.bodyBytes)
	} else {
		body = rb.body
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return nil, err
	}

	// Default headers from client first, then request headers.
	for k, v := range cfg.DefaultHeaders {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	for k, v := range rb.headers {
		req.Header[k] = v
	}

	if rb.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", rb.contentType)
	}
	if rb.accept != "" {
		req.Header.Set("Accept", rb.accept)
	} else if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	// Correlation ID: forward the caller's, or mint one.
	correlationID := correlationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	req.Header.Set(headerCorrelationID, correlationID)

	if cfg.Debug {
		curl := ""
		if cfg.GenerateCurl {
			curl = generateCurlCommand(req, rb.bodyBytes)
		}
		logRequest(rb.client.logger(), req, curl)
	}

	startTime := time.Now()

	//nolint:bodyclose // Caller closes via Response
	httpResp, err := rb.client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if cfg.Debug {
		logResponse(rb.client.logger(), httpResp, time.Since(startTime))
	}

	return &Response{Response: httpResp}, nil
}

// buildURL joins base URL, path parameters and query string.
func (rb *requestBuilder) buildURL() (string, error) {
	path := rb.path

	for k, v := range rb.pathParams {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}

	fullURL := strings.TrimSuffix(rb.client.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")

	if len(rb.queryParams) > 0 {
		u, err := url.Parse(fullURL)
		if err != nil {
			return "", err
		}
		q := u.Query()
		for k, v := range rb.queryParams {
			for _, vv := range v {
				q.Add(k, vv)
			}
		}
		u.RawQuery = q.Encode()
		fullURL = u.String()
	}

	return fullURL, nil
}

func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
