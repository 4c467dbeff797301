package uspstest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/parcelops/usps-go/usps"
)

// Server is an in-process stub of the USPS APIs backed by
// httptest.Server. It records every request it receives and supports
// per-path failure injection.
//
// A Server is safe for concurrent use.
type Server struct {
	cfg config
	srv *httptest.Server

	mu            sync.Mutex
	tokenRequests int
	labelSequence int
	requests      []ReceivedRequest
	failures      map[string]*failureState
}

// ReceivedRequest is one request captured by the stub.
type ReceivedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type failureState struct {
	remaining int
	status    int
}

// New starts a stub server and registers its shutdown with the test.
//
// Example:
//
//	srv := uspstest.New(t)
//	client := srv.Client()
func New(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		cfg:      cfg,
		failures: make(map[string]*failureState),
	}
	s.srv = httptest.NewServer(s.router())
	tb.Cleanup(s.srv.Close)
	return s
}

// URL returns the stub's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Close shuts the stub down. New registers this as a test cleanup, so
// calling it manually is only needed for early teardown.
func (s *Server) Close() {
	s.srv.Close()
}

// Client returns a usps.Client pointed at the stub, configured with
// the stub's credentials and retries disabled. Additional options are
// applied on top and may override either.
func (s *Server) Client(opts ...usps.Option) *usps.Client {
	base := []usps.Option{
		usps.WithBaseURL(s.srv.URL),
		usps.WithCredentials(s.cfg.clientID, s.cfg.clientSecret),
		usps.WithRetryConfig(usps.NoRetryConfig()),
	}
	return usps.New(append(base, opts...)...)
}

// FailNext makes the next n requests to path fail with the given
// status before the canned handler resumes. A 429 status carries
// Retry-After: 1.
func (s *Server) FailNext(path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = &failureState{remaining: n, status: status}
}

// Requests returns a copy of every request received so far, token
// requests included.
func (s *Server) Requests() []ReceivedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReceivedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns how many requests hit the given path.
func (s *Server) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Path == path {
			n++
		}
	}
	return n
}

// TokenRequests returns how many token requests the stub served,
// successful or not.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()

	r.Use(s.recordRequests)
	if s.cfg.latency > 0 {
		r.Use(s.injectLatency)
	}
	if s.cfg.logger != nil {
		r.Use(s.logRequests)
	}
	r.Use(s.injectFailures)

	r.Post("/oauth2/v3/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)

		custom := make(map[string]bool, len(s.cfg.routes))
		for _, route := range s.cfg.routes {
			r.Method(route.method, route.pattern, route.handler)
			custom[route.method+" "+route.pattern] = true
		}

		canned := []customRoute{
			{http.MethodPost, "/addresses/v3/standardize", s.handleStandardize},
			{http.MethodGet, "/addresses/v3/address", s.handleAddressLookup},
			{http.MethodPost, "/prices/v3/domestic", s.handleDomesticPrices},
			{http.MethodPost, "/servicestandards/v3/lookup", s.handleStandardsLookup},
			{http.MethodGet, "/servicestandards/v3/files", s.handleStandardsFiles},
			{http.MethodPost, "/shipments/v3/options/search", s.handleShippingOptions},
			{http.MethodPost, "/international-prices/v3/base-rates/search", s.handleIntlBaseRates},
			{http.MethodPost, "/international-prices/v3/base-rates-list/search", s.handleIntlBaseRatesList},
			{http.MethodPost, "/international-prices/v3/extra-service-rates/search", s.handleIntlExtraServiceRates},
			{http.MethodPost, "/international-prices/v3/total-rates/search", s.handleIntlTotalRates},
			{http.MethodPost, "/labels/v3/label", s.handleDomesticLabel},
			{http.MethodPost, "/international-labels/v3/international-label", s.handleInternationalLabel},
			{http.MethodDelete, "/international-labels/v3/international-label/{trackingNumber}", s.handleCancelLabel},
			{http.MethodPost, "/scan-forms/v3/scan-form", s.handleScanForm},
		}
		for _, route := range canned {
			if custom[route.method+" "+route.pattern] {
				continue
			}
			r.Method(route.method, route.pattern, route.handler)
		}
	})

	return r
}

// ============================================================================
// Middleware
// ============================================================================

func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.requests = append(s.requests, ReceivedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(s.cfg.latency):
		case <-r.Context().Done():
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.cfg.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("stub request")
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		state, ok := s.failures[r.URL.Path]
		if ok && state.remaining > 0 {
			state.remaining--
			status := state.status
			s.mu.Unlock()

			if status == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "1")
			}
			writeError(w, status, strconv.Itoa(status), "injected failure")
			return
		}
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.accessToken {
			writeError(w, http.StatusUnauthorized, "401", "Invalid or expired access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the USPS error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) nextLabelNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labelSequence++
	return s.labelSequence
}
