package keycloak

import (
	"context"
	"net/http"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// CreateRealm creates an enabled realm
func (c *Client) CreateRealm(ctx context.Context, name string) error {
	_, err := c.do(ctx, "create realm", http.MethodPost, c.adminURL(), domain.Realm{Realm: name, Enabled: true}, nil)
	return err
}

// ListRealms lists every realm visible to the admin account
func (c *Client) ListRealms(ctx context.Context) ([]domain.Realm, error) {
	realms := []domain.Realm{}
	if _, err := c.do(ctx, "list realms", http.MethodGet, c.adminURL(), nil, &realms); err != nil {
		return nil, err
	}
	return realms, nil
}

// GetRealm fetches one realm; a missing realm yields domain.ErrNotFound
func (c *Client) GetRealm(ctx context.Context, name string) (*domain.Realm, error) {
	var realm domain.Realm
	if _, err := c.do(ctx, "get realm", http.MethodGet, c.adminURL(name), nil, &realm); err != nil {
		return nil, err
	}
	return &realm, nil
}

// RenameRealm changes a realm's name, keeping it enabled
func (c *Client) RenameRealm(ctx context.Context, name, newName string) error {
	_, err := c.do(ctx, "rename realm", http.MethodPut, c.adminURL(name), domain.Realm{Realm: newName, Enabled: true}, nil)
	return err
}

// DeleteRealm removes a realm
func (c *Client) DeleteRealm(ctx context.Context, name string) error {
	_, err := c.do(ctx, "delete realm", http.MethodDelete, c.adminURL(name), nil, nil)
	return err
}
