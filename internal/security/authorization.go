package security

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

const (
	DefaultAdminRoleSuffix = "_admin_role"
	DefaultSuperAdminRole  = "super_admin_role"
	DefaultSuperAdminGroup = "super_admin"

	StrategyRoleSuffix = "role_suffix"
	StrategyGroupPath  = "group_path"
)

// Strategy derives department and privilege flags from token roles and groups
type Strategy interface {
	Name() string
	Derive(roles, groups []string) (department string, isAdmin, isSuperAdmin bool)
}

// RoleSuffixStrategy reads everything from role names shaped <department>_<kind>_role
type RoleSuffixStrategy struct {
	AdminSuffix    string
	SuperAdminRole string
}

// Name identifies the strategy
func (s RoleSuffixStrategy) Name() string { return StrategyRoleSuffix }

// Derive implements Strategy
func (s RoleSuffixStrategy) Derive(roles, _ []string) (string, bool, bool) {
	superAdmin := false
	department := ""
	for _, role := range roles {
		r := strings.ToLower(strings.TrimSpace(role))
		if s.SuperAdminRole != "" && r == strings.ToLower(s.SuperAdminRole) {
			superAdmin = true
			continue
		}
		if department == "" {
			department = departmentFromRole(r)
		}
	}
	admin := HasAdminRole(roles, s.AdminSuffix)
	return department, admin || superAdmin, superAdmin
}

// GroupPathStrategy reads the department from the first segment of the first group path
type GroupPathStrategy struct {
	AdminSuffix     string
	SuperAdminGroup string
}

// Name identifies the strategy
func (s GroupPathStrategy) Name() string { return StrategyGroupPath }

// Derive implements Strategy
func (s GroupPathStrategy) Derive(roles, groups []string) (string, bool, bool) {
	department := ""
	superAdmin := false
	if len(groups) > 0 {
		segments := splitPath(groups[0])
		if len(segments) > 0 {
			department = segments[0]
			superAdmin = s.SuperAdminGroup != "" && strings.EqualFold(department, s.SuperAdminGroup)
		}
	}

	admin := HasAdminRole(roles, s.AdminSuffix)
	for _, g := range groups {
		segments := splitPath(g)
		if len(segments) > 0 && strings.HasSuffix(strings.ToLower(segments[len(segments)-1]), "_admin") {
			admin = true
		}
	}
	return strings.ToLower(department), admin || superAdmin, superAdmin
}

// NewStrategy selects a strategy by configured name
func NewStrategy(name, adminSuffix, superAdminRole, superAdminGroup string) (Strategy, error) {
	if adminSuffix == "" {
		adminSuffix = DefaultAdminRoleSuffix
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyRoleSuffix:
		if superAdminRole == "" {
			superAdminRole = DefaultSuperAdminRole
		}
		return RoleSuffixStrategy{AdminSuffix: adminSuffix, SuperAdminRole: superAdminRole}, nil
	case StrategyGroupPath:
		if superAdminGroup == "" {
			superAdminGroup = DefaultSuperAdminGroup
		}
		return GroupPathStrategy{AdminSuffix: adminSuffix, SuperAdminGroup: superAdminGroup}, nil
	default:
		return nil, fmt.Errorf("unknown authorization strategy %q", name)
	}
}

// HasAdminRole reports whether any role ends with the admin suffix (case-insensitive)
func HasAdminRole(roles []string, suffix string) bool {
	if suffix == "" {
		suffix = DefaultAdminRoleSuffix
	}
	suffix = strings.ToLower(suffix)
	for _, r := range roles {
		if strings.HasSuffix(strings.ToLower(r), suffix) {
			return true
		}
	}
	return false
}

// departmentFromRole maps "finance_admin_role" and "finance_user_role" to "finance"
func departmentFromRole(role string) string {
	if !strings.HasSuffix(role, "_role") {
		return ""
	}
	base := strings.TrimSuffix(role, "_role")
	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return ""
	}
	return base[:i]
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AuthorizationService builds caller identities and performs role checks
type AuthorizationService struct {
	strategy Strategy
	logger   *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(strategy Strategy, logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == nil {
		strategy = RoleSuffixStrategy{AdminSuffix: DefaultAdminRoleSuffix, SuperAdminRole: DefaultSuperAdminRole}
	}
	return &AuthorizationService{strategy: strategy, logger: logger}
}

// Identify builds the request-scoped caller identity
func (as *AuthorizationService) Identify(username string, roles, groups []string) *domain.AuthenticatedUser {
	department, admin, superAdmin := as.strategy.Derive(roles, groups)
	return &domain.AuthenticatedUser{
		Username:     username,
		Roles:        roles,
		Groups:       groups,
		Department:   department,
		IsAdmin:      admin,
		IsSuperAdmin: superAdmin,
	}
}

// RequireAdmin fails with domain.ErrForbidden unless the caller holds an admin role
func (as *AuthorizationService) RequireAdmin(user *domain.AuthenticatedUser) error {
	if user == nil || !user.IsAdmin {
		as.deny(user, "admin role required")
		return fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return nil
}

// RequireSuperAdmin fails with domain.ErrForbidden unless the caller is a super-admin
func (as *AuthorizationService) RequireSuperAdmin(user *domain.AuthenticatedUser) error {
	if user == nil || !user.IsSuperAdmin {
		as.deny(user, "super-admin required")
		return fmt.Errorf("%w: super-admin required", domain.ErrForbidden)
	}
	return nil
}

func (as *AuthorizationService) deny(user *domain.AuthenticatedUser, reason string) {
	username := ""
	if user != nil {
		username = user.Username
	}
	as.logger.Warn("permission denied",
		slog.String("username", username),
		slog.String("reason", reason),
		slog.String("strategy", as.strategy.Name()),
	)
}
