package usps

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// MockTransport provides a configurable http.RoundTripper for testing.
// It allows stubbing responses and verifying request expectations.
//
//	mock := usps.NewMockTransport()
//	mock.StubPath("/oauth2/v3/token", 200, `{"access_token":"t","expires_in":3600}`)
//	mock.StubPath("/prices/v3/domestic", 200, `{"quotes":[]}`)
//
//	client := usps.New(
//	    usps.WithTransport(mock),
//	    usps.WithBaseURL("https://apis-tem.usps.com"),
//	    usps.WithCredentials("id", "secret"),
//	)
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []stub
	defaultResp *http.Response
	defaultErr  error
	requests    []*http.Request
	requestHook func(*http.Request)
}

type stub struct {
	matcher   func(*http.Request) bool
	response  *http.Response
	responses []*http.Response
	err       error
	calls     int
}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse stubs all requests to return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = buildStubResponse(statusCode, body, nil)
	return m
}

// StubError stubs all requests to return the given error.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultErr = err
	return m
}

// StubPath stubs requests matching the path to return the given response.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathWithHeaders stubs requests matching the path to return the
// given response with response headers set.
func (m *MockTransport) StubPathWithHeaders(
	path string,
	statusCode int,
	body string,
	headers http.Header,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher:  func(req *http.Request) bool { return req.URL.Path == path },
		response: buildStubResponse(statusCode, body, headers),
	})
	return m
}

// StubPathSequence stubs requests matching the path to return the given
// responses in order, repeating the final response once the sequence is
// exhausted. Use for retry scenarios such as 429, 429, 200.
func (m *MockTransport) StubPathSequence(path string, responses ...*http.Response) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher:   func(req *http.Request) bool { return req.URL.Path == path },
		responses: responses,
	})
	return m
}

// StubPathRegex stubs requests matching the path regex to return the given response.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, statusCode, body)
}

// StubMethod stubs requests with the given method to return the given response.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.Method == method
	}, statusCode, body)
}

// StubFunc stubs requests matching the predicate to return the given response.
func (m *MockTransport) StubFunc(
	matcher func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher:  matcher,
		response: buildStubResponse(statusCode, body, nil),
	})
	return m
}

// StubFuncError stubs requests matching the predicate to return the given error.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{
		matcher: matcher,
		err:     err,
	})
	return m
}

// OnRequest sets a hook that is called for each request.
// Useful for assertions or capturing request details.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// NewStubResponse builds a response for use with StubPathSequence.
func NewStubResponse(statusCode int, body string, headers http.Header) *http.Response {
	return buildStubResponse(statusCode, body, headers)
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.requestHook

	// Check stubs in order (first match wins)
	for i := range m.stubs {
		s := &m.stubs[i]
		if !s.matcher(req) {
			continue
		}

		var resp *http.Response
		var err error
		switch {
		case s.err != nil:
			err = s.err
		case len(s.responses) > 0:
			idx := s.calls
			if idx >= len(s.responses) {
				idx = len(s.responses) - 1
			}
			s.calls++
			resp = cloneResponse(s.responses[idx])
		default:
			resp = cloneResponse(s.response)
		}
		m.mu.Unlock()

		if hook != nil {
			hook(req)
		}
		return resp, err
	}

	defaultErr := m.defaultErr
	defaultResp := m.defaultResp
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	if defaultErr != nil {
		return nil, defaultErr
	}
	if defaultResp != nil {
		return cloneResponse(defaultResp), nil
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.defaultResp = nil
	m.defaultErr = nil
	m.requestHook = nil
}

func buildStubResponse(statusCode int, body string, headers http.Header) *http.Response {
	h := make(http.Header)
	for k, vs := range headers {
		h[k] = append([]string(nil), vs...)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	return &http.Response{
		StatusCode:    statusCode,
		Status:        http.StatusText(statusCode),
		Body:          io.NopCloser(bytes.NewBufferString(body)),
		Header:        h,
		ContentLength: int64(len(body)),
	}
}

func cloneResponse(resp *http.Response) *http.Response {
	if resp == nil {
		return nil
	}

	var bodyBytes []byte
	if resp.Body != nil {
		bodyBytes, _ = io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	return &http.Response{
		Status:        resp.Status,
		StatusCode:    resp.StatusCode,
		Header:        resp.Header.Clone(),
		Body:          io.NopCloser(bytes.NewBuffer(bodyBytes)),
		ContentLength: resp.ContentLength,
		Request:       resp.Request,
	}
}
