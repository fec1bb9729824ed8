package security

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// RuleAccess enforces department scoping on rule reads and writes
type RuleAccess struct {
	logger *slog.Logger
}

// NewRuleAccess creates a rule access checker
func NewRuleAccess(logger *slog.Logger) *RuleAccess {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleAccess{logger: logger}
}

// ScopeDepartment returns the department filter to apply for a listing.
// Super-admins get what they asked for; everyone else is pinned to their own
// department, and a caller without one is refused.
func (a *RuleAccess) ScopeDepartment(user *domain.AuthenticatedUser, requested *string) (*string, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: no caller identity", domain.ErrUnauthorized)
	}
	if user.IsSuperAdmin {
		if requested != nil && strings.TrimSpace(*requested) == "" {
			return nil, nil
		}
		return requested, nil
	}
	if user.Department == "" {
		a.logger.Warn("rule listing denied: caller has no department", slog.String("username", user.Username))
		return nil, fmt.Errorf("%w: caller has no department", domain.ErrForbidden)
	}
	dept := user.Department
	return &dept, nil
}

// CheckRule verifies the caller may see rule. Rules outside the caller's
// department are reported as not found so their existence is not revealed.
func (a *RuleAccess) CheckRule(user *domain.AuthenticatedUser, rule *domain.Rule) error {
	if user == nil {
		return fmt.Errorf("%w: no caller identity", domain.ErrUnauthorized)
	}
	if user.IsSuperAdmin {
		return nil
	}
	if rule.Department != nil && user.CanSeeDepartment(*rule.Department) {
		return nil
	}
	a.logger.Warn("rule access denied",
		slog.String("username", user.Username),
		slog.String("rule_id", rule.ID),
		slog.String("department", user.Department),
	)
	return fmt.Errorf("rule %s: %w", rule.ID, domain.ErrNotFound)
}

// ParseScope is the department a prompt-driven parse is constrained to, or ""
// for super-admins and when scoping is disabled.
func (a *RuleAccess) ParseScope(user *domain.AuthenticatedUser, scopingEnabled bool) string {
	if !scopingEnabled || user == nil || user.IsSuperAdmin {
		return ""
	}
	return user.Department
}
