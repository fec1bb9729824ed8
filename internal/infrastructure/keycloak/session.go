package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// PasswordGrant exchanges end-user credentials for tokens in the working realm.
// Rejected credentials yield domain.ErrUnauthorized.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*domain.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("username", username)
	form.Set("password", password)

	var tokens domain.TokenSet
	if err := c.postForm(ctx, "password grant", c.cfg.Realm, "token", form, &tokens); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return &tokens, nil
}

// Logout ends the session bound to a refresh token
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)
	return c.postForm(ctx, "logout", c.cfg.Realm, "logout", form, nil)
}
