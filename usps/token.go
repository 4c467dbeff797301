package usps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const tokenPath = "oauth2/v3/token"

// tokenResponse is the OAuth token endpoint payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenProvider manages the OAuth2 client-credentials token lifecycle:
// cache, freshness, refresh and invalidation.
//
// Concurrent callers that all find the cached token stale collapse
// into a single outbound refresh via singleflight; the rest wait for
// and share its result. A failed refresh is never cached, so the next
// caller retries.
type tokenProvider struct {
	cfg        *internalConfig
	httpClient *http.Client
	group      singleflight.Group

	// now is replaceable in tests.
	now func() time.Time
}

func newTokenProvider(cfg *internalConfig, httpClient *http.Client) *tokenProvider {
	return &tokenProvider{
		cfg:        cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// bearer returns a fresh access token, refreshing if necessary.
func (p *tokenProvider) bearer(ctx context.Context) (string, error) {
	if !p.cfg.configured() {
		return "", ErrNotConfigured
	}

	tok, ok, err := p.cfg.TokenStore.Load(ctx)
	if err == nil && ok && tok.Fresh(p.now(), p.cfg.TokenSkew) {
		return tok.AccessToken, nil
	}

	v, err, _ := p.group.Do("token", func() (any, error) {
		// Re-check under the flight: another caller may have
		// refreshed between our staleness check and now.
		tok, ok, err := p.cfg.TokenStore.Load(ctx)
		if err == nil && ok && tok.Fresh(p.now(), p.cfg.TokenSkew) {
			return tok.AccessToken, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate drops the cached token so the next request refreshes.
// Called when the API rejects a token with 401.
func (p *tokenProvider) invalidate(ctx context.Context) {
	_ = p.cfg.TokenStore.Clear(ctx)
}

// refresh performs the outbound token request and caches the result.
func (p *tokenProvider) refresh(ctx context.Context) (string, error) {
	req, err := p.buildTokenRequest(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}

	obtainedAt := p.now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordRefresh(ctx, "failure")
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordRefresh(ctx, "failure")
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.recordRefresh(ctx, "failure")
		return "", fmt.Errorf("%w: %s", ErrTokenRefresh, extractErrorMessage(body, resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		p.recordRefresh(ctx, "failure")
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	if strings.TrimSpace(tr.AccessToken) == "" {
		p.recordRefresh(ctx, "failure")
		return "", fmt.Errorf("%w: token response has no access_token", ErrTokenRefresh)
	}

	tok := Token{
		AccessToken: tr.AccessToken,
		ObtainedAt:  obtainedAt,
		ExpiresIn:   time.Duration(tr.ExpiresIn) * time.Second,
	}
	if err := p.cfg.TokenStore.Save(ctx, tok); err != nil && p.cfg.Debug {
		logger := p.logger()
		logger.Debug().Err(err).Msg("token store save failed")
	}

	p.recordRefresh(ctx, "success")
	return tok.AccessToken, nil
}

// buildTokenRequest encodes the client-credentials grant. JSON is the
// default; WithOAuthFormBody switches to
// application/x-www-form-urlencoded for gateways that require it.
func (p *tokenProvider) buildTokenRequest(ctx context.Context) (*http.Request, error) {
	endpoint := p.cfg.BaseURL + tokenPath

	var (
		body        []byte
		contentType string
	)

	if p.cfg.OAuthFormBody {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", p.cfg.ClientID)
		form.Set("client_secret", p.cfg.ClientSecret)
		body = []byte(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	} else {
		var err error
		body, err = json.Marshal(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     p.cfg.ClientID,
			"client_secret": p.cfg.ClientSecret,
		})
		if err != nil {
			return nil, err
		}
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	if p.cfg.Debug {
		curl := ""
		if p.cfg.GenerateCurl {
			curl = generateCurlCommand(req, body)
		}
		logRequest(p.logger(), req, curl)
	}

	return req, nil
}

func (p *tokenProvider) recordRefresh(ctx context.Context, outcome string) {
	p.cfg.Metrics.recordTokenRefresh(ctx, outcome)
	p.cfg.Collector.tokenRefreshObserved(outcome)
}

func (p *tokenProvider) logger() zerolog.Logger {
	if p.cfg.DebugLogger != nil {
		return *p.cfg.DebugLogger
	}
	return debugLogger
}
