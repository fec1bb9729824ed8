// Package keycloak talks to the Keycloak admin REST API and OIDC endpoints.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/metrics"
)

// Config holds Keycloak connection settings
type Config struct {
	BaseURL      string // e.g. http://localhost:8080
	Realm        string // realm holding users, groups and roles
	TokenRealm   string // realm the admin service account authenticates against
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// APIError is a non-2xx response from Keycloak
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keycloak %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Unwrap classifies the response into the domain error taxonomy
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	default:
		return domain.ErrUpstream
	}
}

// Client is a Keycloak admin and OIDC client
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *TokenSource
	logger *slog.Logger
}

// NewClient creates a client. Outbound requests are traced through otelhttp.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenRealm == "" {
		cfg.TokenRealm = "master"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: NewTokenSource(httpClient, cfg, logger),
		logger: logger,
	}
}

// Realm returns the working realm name
func (c *Client) Realm() string {
	return c.cfg.Realm
}

// Ping checks that the OIDC discovery document of the working realm is reachable
func (c *Client) Ping(ctx context.Context) error {
	u := fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", c.cfg.BaseURL, url.PathEscape(c.cfg.Realm))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: keycloak unreachable: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &APIError{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

// adminURL builds an admin API URL. Segments are path-escaped.
func (c *Client) adminURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.cfg.BaseURL)
	b.WriteString("/admin/realms")
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// realmURL builds an admin API URL inside the working realm
func (c *Client) realmURL(segments ...string) string {
	return c.adminURL(append([]string{c.cfg.Realm}, segments...)...)
}

// do sends an authenticated admin request. in is JSON-encoded when non-nil;
// out is decoded when non-nil. It returns the response headers.
func (c *Client) do(ctx context.Context, op, method, rawURL string, in, out interface{}) (http.Header, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		metrics.ObserveIdentityCall(op, "token_error")
		return nil, err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveIdentityCall(op, "transport_error")
		c.logger.Error("keycloak request failed", slog.String("op", op), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: keycloak %s: %v", domain.ErrUpstream, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveIdentityCall(op, statusLabel(resp.StatusCode))
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return nil, readAPIError(op, resp)
	}
	metrics.ObserveIdentityCall(op, "success")

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decode keycloak %s response: %v", domain.ErrUpstream, op, err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.Header, nil
}

// postForm sends an unauthenticated form POST to an OIDC endpoint of realm
func (c *Client) postForm(ctx context.Context, op, realm, endpoint string, form url.Values, out interface{}) error {
	u := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/%s", c.cfg.BaseURL, url.PathEscape(realm), endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveIdentityCall(op, "transport_error")
		return fmt.Errorf("%w: keycloak %s: %v", domain.ErrUpstream, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveIdentityCall(op, statusLabel(resp.StatusCode))
		return readAPIError(op, resp)
	}
	metrics.ObserveIdentityCall(op, "success")
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode keycloak %s response: %v", domain.ErrUpstream, op, err)
		}
	}
	return nil
}

func readAPIError(op string, resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(buf))}
}

// idFromLocation returns the last path segment of a Location header
func idFromLocation(h http.Header) string {
	loc := h.Get("Location")
	if loc == "" {
		return ""
	}
	if i := strings.LastIndexByte(loc, '/'); i >= 0 {
		return loc[i+1:]
	}
	return ""
}

func statusLabel(code int) string {
	return fmt.Sprintf("status_%d", code)
}
