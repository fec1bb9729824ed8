package domain

import (
	"context"
	"strings"
)

// AuthenticatedUser is the caller identity derived from a verified access token
type AuthenticatedUser struct {
	Username     string
	Roles        []string // realm and client roles, de-duplicated
	Groups       []string // group paths as issued, e.g. /finance/finance_admin
	Department   string
	IsAdmin      bool
	IsSuperAdmin bool
}

// CanSeeDepartment reports whether the caller may read rules of the given department
func (u *AuthenticatedUser) CanSeeDepartment(department string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperAdmin {
		return true
	}
	return u.Department != "" && strings.EqualFold(u.Department, department)
}

// Realm is an identity-provider tenant
type Realm struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// OnboardUser is the input of the user onboarding flow
type OnboardUser struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	GroupName string `json:"groupName"`
	RoleName  string `json:"roleName"`
}

// OnboardResult summarises what onboarding created or reused
type OnboardResult struct {
	UserID      string `json:"userId"`
	ParentGroup string `json:"parentGroup"`
	ChildGroup  string `json:"childGroup"`
	Role        string `json:"role"`
}

// IdentityUser is a user entry enriched with role and group names.
// Error is set instead of roles and groups when the lookup for that user failed.
type IdentityUser struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles"`
	Groups    []string `json:"groups"`
	Error     string   `json:"error,omitempty"`
}

// TokenSet is the OIDC token response returned to clients on login
type TokenSet struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	TokenType        string `json:"token_type"`
}

// Group is an identity-provider group
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Role is an identity-provider realm role
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RealmAdmin manages identity-provider realms
type RealmAdmin interface {
	CreateRealm(ctx context.Context, name string) error
	ListRealms(ctx context.Context) ([]Realm, error)
	GetRealm(ctx context.Context, name string) (*Realm, error)
	RenameRealm(ctx context.Context, name, newName string) error
	DeleteRealm(ctx context.Context, name string) error
}

// DirectoryAdmin manages users, groups and roles inside the working realm
type DirectoryAdmin interface {
	FindUsers(ctx context.Context, query map[string]string) ([]IdentityUser, error)
	CreateUser(ctx context.Context, user OnboardUser) (string, error)
	ListUsers(ctx context.Context) ([]IdentityUser, error)
	UserRealmRoles(ctx context.Context, userID string) ([]Role, error)
	UserGroups(ctx context.Context, userID string) ([]Group, error)
	AddUserToGroup(ctx context.Context, userID, groupID string) error

	ListGroups(ctx context.Context) ([]Group, error)
	CreateGroup(ctx context.Context, name string) (string, error)
	ListChildGroups(ctx context.Context, parentID string) ([]Group, error)
	CreateChildGroup(ctx context.Context, parentID, name string) (string, error)

	GetRealmRole(ctx context.Context, name string) (*Role, error)
	CreateRealmRole(ctx context.Context, name string) error
	AssignRealmRoleToGroup(ctx context.Context, groupID string, role Role) error
}

// SessionProvider performs end-user logins against the identity provider
type SessionProvider interface {
	PasswordGrant(ctx context.Context, username, password string) (*TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
}
