// Package credentials reads the operator's bearer token from the cookie the
// marketplace web app stores it in.
package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultCookieName = "token"

var (
	ErrNoCredential      = errors.New("no credential: login required")
	ErrCredentialExpired = errors.New("credential expired: login required")
)

// Store yields the bearer token attached to backend requests.
type Store interface {
	Token(ctx context.Context) (string, error)
}

// CookieStore keeps the token as a cookie scoped to the backend URL.
type CookieStore struct {
	mu      sync.Mutex
	jar     http.CookieJar
	baseURL *url.URL
	name    string
	now     func() time.Time
}

// NewCookieStore creates a store for the backend at baseURL. An empty
// cookieName uses DefaultCookieName.
func NewCookieStore(baseURL, cookieName string) (*CookieStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	if cookieName == "" {
		cookieName = DefaultCookieName
	}

	return &CookieStore{
		jar:     jar,
		baseURL: u,
		name:    cookieName,
		now:     time.Now,
	}, nil
}

// Token returns the stored token. A missing cookie is ErrNoCredential. When
// the token is a JWT its exp claim is checked; the signature is left to the
// backend.
func (s *CookieStore) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token string
	for _, c := range s.jar.Cookies(s.baseURL) {
		if c.Name == s.name {
			token = strings.TrimSpace(c.Value)
			break
		}
	}
	if token == "" {
		return "", ErrNoCredential
	}

	if expired(token, s.now()) {
		return "", ErrCredentialExpired
	}

	return token, nil
}

// Set stores token as the credential cookie.
func (s *CookieStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jar.SetCookies(s.baseURL, []*http.Cookie{{
		Name:  s.name,
		Value: strings.TrimSpace(token),
		Path:  "/",
	}})
}

// Clear removes the credential cookie.
func (s *CookieStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jar.SetCookies(s.baseURL, []*http.Cookie{{
		Name:   s.name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
}

func expired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false // opaque token
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}

// Fingerprint returns a short, stable digest of token for cache keys and logs.
func Fingerprint(token string) string {
	if token == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

// Static is a Store with a fixed token, used by tools and tests.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}
