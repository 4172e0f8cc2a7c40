package verification

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// refreshSkew refreshes a token this long before its exp claim.
const refreshSkew = 30 * time.Second

// tokenManager owns the client's single session token. Concurrent callers
// that find it stale share one refresh.
type tokenManager struct {
	fetch func(ctx context.Context) (string, error)
	now   func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

func newTokenManager(fetch func(ctx context.Context) (string, error)) *tokenManager {
	return &tokenManager{fetch: fetch, now: time.Now}
}

// Current returns a usable token, refreshing when there is none or when
// its exp claim is close.
func (m *tokenManager) Current(ctx context.Context) (string, error) {
	m.mu.RLock()
	tok, exp := m.token, m.expiresAt
	m.mu.RUnlock()

	if tok != "" && (exp.IsZero() || m.now().Add(refreshSkew).Before(exp)) {
		return tok, nil
	}
	return m.Refresh(ctx, tok)
}

// Refresh replaces stale with a fresh token. If another caller already
// replaced stale, its token is returned without a new fetch.
func (m *tokenManager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.RLock()
	cur := m.token
	m.mu.RUnlock()
	if cur != "" && cur != stale {
		return cur, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		m.mu.RLock()
		cur := m.token
		m.mu.RUnlock()
		if cur != "" && cur != stale {
			return cur, nil
		}

		tok, err := m.fetch(ctx)
		if err != nil {
			return "", err
		}

		m.mu.Lock()
		m.token = tok
		m.expiresAt = tokenExpiry(tok)
		m.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client only uses it to refresh early. Opaque tokens have no expiry.
func tokenExpiry(tok string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
