package usps

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Token is a cached OAuth2 access token.
type Token struct {
	// AccessToken is the bearer token value.
	AccessToken string `json:"accessToken"`

	// ObtainedAt is when the token response was received.
	ObtainedAt time.Time `json:"obtainedAt"`

	// ExpiresIn is the lifetime reported by the token endpoint.
	ExpiresIn time.Duration `json:"expiresIn"`
}

// FreshUntil returns the instant after which the token should no
// longer be used. With skew > 0 the token is fresh until expiry minus
// skew; otherwise it is fresh for 70% of its reported lifetime, which
// refreshes well clear of the expiry boundary.
func (t Token) FreshUntil(skew time.Duration) time.Time {
	if t.AccessToken == "" {
		return time.Time{}
	}
	if skew > 0 {
		return t.ObtainedAt.Add(t.ExpiresIn - skew)
	}
	return t.ObtainedAt.Add(time.Duration(float64(t.ExpiresIn) * 0.7))
}

// Fresh reports whether the token is still usable at the given time.
func (t Token) Fresh(now time.Time, skew time.Duration) bool {
	return t.AccessToken != "" && now.Before(t.FreshUntil(skew))
}

// TokenStore caches OAuth tokens between requests. Implementations
// must be safe for concurrent use.
type TokenStore interface {
	// Load returns the cached token and whether one was present.
	Load(ctx context.Context) (Token, bool, error)

	// Save replaces the cached token.
	Save(ctx context.Context, tok Token) error

	// Clear drops the cached token, forcing the next request to
	// refresh.
	Clear(ctx context.Context) error
}

// =============================================================================
// MemoryTokenStore
// =============================================================================

// MemoryTokenStore keeps the token in process memory. This is the
// default store.
type MemoryTokenStore struct {
	mu  sync.RWMutex
	tok Token
	ok  bool
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load implements TokenStore.
func (s *MemoryTokenStore) Load(_ context.Context) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tok, s.ok, nil
}

// Save implements TokenStore.
func (s *MemoryTokenStore) Save(_ context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	s.ok = true
	return nil
}

// Clear implements TokenStore.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = Token{}
	s.ok = false
	return nil
}

// =============================================================================
// RedisTokenStore
// =============================================================================

// RedisTokenStore shares one token across replicas through Redis. The
// entry expires with the token itself, so a stale token is never
// served after its upstream lifetime.
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//
//	client := usps.New(
//	    usps.WithTokenStore(usps.NewRedisTokenStore(rdb, "usps:token")),
//	)
type RedisTokenStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisTokenStore creates a Redis-backed token store under the
// given key.
func NewRedisTokenStore(client redis.UniversalClient, key string) *RedisTokenStore {
	if key == "" {
		key = "usps:oauth:token"
	}
	return &RedisTokenStore{client: client, key: key}
}

// Load implements TokenStore.
func (s *RedisTokenStore) Load(ctx context.Context) (Token, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, false, err
	}
	return tok, true, nil
}

// Save implements TokenStore.
func (s *RedisTokenStore) Save(ctx context.Context, tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}

	ttl := time.Until(tok.ObtainedAt.Add(tok.ExpiresIn))
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

// Clear implements TokenStore.
func (s *RedisTokenStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
