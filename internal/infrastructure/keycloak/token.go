package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/pkg/cache"
)

// refreshSkew is how long before expiry a cached admin token is considered stale
const refreshSkew = 60 * time.Second

// TokenSource hands out the admin service-account token. Concurrent callers
// that find the cache empty share a single client-credentials request.
type TokenSource struct {
	http   *http.Client
	cfg    Config
	cache  *cache.Cache[string]
	group  singleflight.Group
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenSource creates a token source for the configured token realm
func NewTokenSource(httpClient *http.Client, cfg Config, logger *slog.Logger) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSource{
		http:   httpClient,
		cfg:    cfg,
		cache:  cache.New[string](),
		now:    time.Now,
		logger: logger,
	}
}

func (s *TokenSource) key() string {
	return "admin-token:" + s.cfg.TokenRealm
}

// Token returns a cached token or fetches a new one
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cache.Get(s.key()); ok {
		return tok, nil
	}

	v, err, shared := s.group.Do(s.key(), func() (interface{}, error) {
		if tok, ok := s.cache.Get(s.key()); ok {
			return tok, nil
		}
		return s.fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger.Debug("admin token request shared")
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call fetches a fresh one
func (s *TokenSource) Invalidate() {
	s.cache.Delete(s.key())
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.cfg.ClientID)
	form.Set("client_secret", s.cfg.ClientSecret)

	u := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", s.cfg.BaseURL, url.PathEscape(s.cfg.TokenRealm))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: admin token request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Error("admin token request rejected", slog.Int("status", resp.StatusCode))
		return "", &APIError{Op: "admin token", Status: resp.StatusCode, Body: strings.TrimSpace(string(buf))}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode admin token: %v", domain.ErrUpstream, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: admin token response without access_token", domain.ErrUpstream)
	}

	ttl := time.Duration(body.ExpiresIn)*time.Second - refreshSkew
	if ttl > 0 {
		s.cache.SetUntil(s.key(), body.AccessToken, s.now().Add(ttl))
	}
	s.logger.Info("admin token refreshed", slog.String("realm", s.cfg.TokenRealm), slog.Int("expires_in", body.ExpiresIn))
	return body.AccessToken, nil
}
