package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

type credential struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	ID          string       `json:"id,omitempty"`
	Username    string       `json:"username"`
	Email       string       `json:"email,omitempty"`
	FirstName   string       `json:"firstName,omitempty"`
	LastName    string       `json:"lastName,omitempty"`
	Enabled     bool         `json:"enabled"`
	Credentials []credential `json:"credentials,omitempty"`
}

func (u userRepresentation) toIdentity() domain.IdentityUser {
	return domain.IdentityUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// FindUsers searches users of the working realm. query keys are Keycloak
// search parameters such as username, email and exact.
func (c *Client) FindUsers(ctx context.Context, query map[string]string) ([]domain.IdentityUser, error) {
	q := url.Values{}
	for k, v := range query {
		q.Set(k, v)
	}
	u := c.realmURL("users")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var reps []userRepresentation
	if _, err := c.do(ctx, "find users", http.MethodGet, u, nil, &reps); err != nil {
		return nil, err
	}
	out := make([]domain.IdentityUser, 0, len(reps))
	for _, r := range reps {
		out = append(out, r.toIdentity())
	}
	return out, nil
}

// CreateUser creates an enabled user with a permanent password and returns its id
func (c *Client) CreateUser(ctx context.Context, user domain.OnboardUser) (string, error) {
	rep := userRepresentation{
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Enabled:   true,
		Credentials: []credential{
			{Type: "password", Value: user.Password, Temporary: false},
		},
	}
	h, err := c.do(ctx, "create user", http.MethodPost, c.realmURL("users"), rep, nil)
	if err != nil {
		return "", err
	}
	if id := idFromLocation(h); id != "" {
		return id, nil
	}
	return c.userIDByUsername(ctx, user.Username)
}

func (c *Client) userIDByUsername(ctx context.Context, username string) (string, error) {
	users, err := c.FindUsers(ctx, map[string]string{"username": username, "exact": "true"})
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	return users[0].ID, nil
}

// ListUsers lists users of the working realm
func (c *Client) ListUsers(ctx context.Context) ([]domain.IdentityUser, error) {
	return c.FindUsers(ctx, nil)
}

// UserRealmRoles lists the realm roles mapped directly to a user
func (c *Client) UserRealmRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	roles := []domain.Role{}
	if _, err := c.do(ctx, "user roles", http.MethodGet, c.realmURL("users", userID, "role-mappings", "realm"), nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// UserGroups lists the groups a user is a member of
func (c *Client) UserGroups(ctx context.Context, userID string) ([]domain.Group, error) {
	groups := []domain.Group{}
	if _, err := c.do(ctx, "user groups", http.MethodGet, c.realmURL("users", userID, "groups"), nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddUserToGroup adds a membership. Keycloak treats repeats as no-ops.
func (c *Client) AddUserToGroup(ctx context.Context, userID, groupID string) error {
	_, err := c.do(ctx, "join group", http.MethodPut, c.realmURL("users", userID, "groups", groupID), nil, nil)
	return err
}

// ListGroups lists top-level groups
func (c *Client) ListGroups(ctx context.Context) ([]domain.Group, error) {
	groups := []domain.Group{}
	if _, err := c.do(ctx, "list groups", http.MethodGet, c.realmURL("groups"), nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a top-level group and returns its id
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	h, err := c.do(ctx, "create group", http.MethodPost, c.realmURL("groups"), domain.Group{Name: name}, nil)
	if err != nil {
		return "", err
	}
	return idFromLocation(h), nil
}

// ListChildGroups lists the direct subgroups of a group
func (c *Client) ListChildGroups(ctx context.Context, parentID string) ([]domain.Group, error) {
	groups := []domain.Group{}
	if _, err := c.do(ctx, "list child groups", http.MethodGet, c.realmURL("groups", parentID, "children"), nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateChildGroup creates a subgroup and returns its id
func (c *Client) CreateChildGroup(ctx context.Context, parentID, name string) (string, error) {
	var created domain.Group
	h, err := c.do(ctx, "create child group", http.MethodPost, c.realmURL("groups", parentID, "children"), domain.Group{Name: name}, &created)
	if err != nil {
		return "", err
	}
	if created.ID != "" {
		return created.ID, nil
	}
	return idFromLocation(h), nil
}

// GetRealmRole fetches a realm role by name
func (c *Client) GetRealmRole(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	if _, err := c.do(ctx, "get role", http.MethodGet, c.realmURL("roles", name), nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateRealmRole creates a realm role
func (c *Client) CreateRealmRole(ctx context.Context, name string) error {
	_, err := c.do(ctx, "create role", http.MethodPost, c.realmURL("roles"), domain.Role{Name: name}, nil)
	return err
}

// AssignRealmRoleToGroup maps a realm role onto a group
func (c *Client) AssignRealmRoleToGroup(ctx context.Context, groupID string, role domain.Role) error {
	_, err := c.do(ctx, "assign group role", http.MethodPost, c.realmURL("groups", groupID, "role-mappings", "realm"), []domain.Role{role}, nil)
	return err
}
