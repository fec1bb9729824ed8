package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/nlp"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// RuleService composes rule parsing output with the rule store
type RuleService struct {
	repo   domain.RuleRepository
	logger *slog.Logger
}

// RulePatch is an update request. Conditions and Actions replace the stored
// set as a whole when non-nil (an empty slice clears it); nil leaves them untouched.
type RulePatch struct {
	Title      *string                  `json:"title"`
	Department *string                  `json:"department"`
	Logic      *string                  `json:"logic"`
	IsActive   *bool                    `json:"is_active"`
	Conditions []domain.ParsedCondition `json:"conditions"`
	Actions    []domain.ParsedAction    `json:"actions"`
}

// NewRuleService creates a new rule service
func NewRuleService(repo domain.RuleRepository, logger *slog.Logger) *RuleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleService{repo: repo, logger: logger}
}

// ProcessAndStoreRule stores a parsed rule with its conditions and actions in
// one transaction and returns the new rule id
func (s *RuleService) ProcessAndStoreRule(ctx context.Context, parsed *domain.ParsedRule, actor string) (string, error) {
	if err := validateParsedRule(parsed); err != nil {
		return "", err
	}

	rule := &domain.Rule{
		Title:      strings.TrimSpace(parsed.Rule.Title),
		Department: optional(parsed.Rule.Department),
		Logic:      optional(parsed.Logic),
		IsActive:   true,
		CreatedBy:  optional(actor),
	}

	err := s.repo.Transact(ctx, func(w domain.RuleWriter) error {
		if err := w.CreateRule(ctx, rule); err != nil {
			return err
		}
		if err := w.CreateRuleConditions(ctx, conditionRows(rule.ID, parsed.Conditions, actor, false)); err != nil {
			return err
		}
		return w.CreateRuleActions(ctx, actionRows(rule.ID, parsed.Actions, actor, false))
	})
	if err != nil {
		s.logger.Error("failed to store rule",
			slog.String("title", rule.Title),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to store rule: %w", err)
	}

	s.logger.Info("rule stored",
		slog.String("rule_id", rule.ID),
		slog.String("actor", actor),
		slog.Int("conditions", len(parsed.Conditions)),
		slog.Int("actions", len(parsed.Actions)),
	)
	return rule.ID, nil
}

// UpdateRule applies patch and reports false, with nothing changed, when the rule does not exist
func (s *RuleService) UpdateRule(ctx context.Context, id string, patch RulePatch, actor string) (bool, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return false, fmt.Errorf("%w: title must not be empty", domain.ErrValidation)
	}
	if err := validateClauses(patch.Conditions, patch.Actions); err != nil {
		return false, err
	}

	err := s.repo.Transact(ctx, func(w domain.RuleWriter) error {
		update := domain.RuleUpdate{
			Title:      patch.Title,
			Department: patch.Department,
			Logic:      patch.Logic,
			IsActive:   patch.IsActive,
			UpdatedBy:  actor,
		}
		if err := w.UpdateRule(ctx, id, update); err != nil {
			return err
		}
		if patch.Conditions != nil {
			if err := w.DeleteRuleConditions(ctx, id); err != nil {
				return err
			}
			if err := w.CreateRuleConditions(ctx, conditionRows(id, patch.Conditions, actor, true)); err != nil {
				return err
			}
		}
		if patch.Actions != nil {
			if err := w.DeleteRuleActions(ctx, id); err != nil {
				return err
			}
			if err := w.CreateRuleActions(ctx, actionRows(id, patch.Actions, actor, true)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update rule %s: %w", id, err)
	}

	s.logger.Info("rule updated", slog.String("rule_id", id), slog.String("actor", actor))
	return true, nil
}

// GetAllRules returns a page of rules. page is 1-based.
func (s *RuleService) GetAllRules(ctx context.Context, page, limit int, isActive *bool, department *string) (*domain.RulePage, error) {
	page, limit = NormalizePage(page, limit)
	return s.repo.GetAllRules(ctx, domain.RuleFilter{
		Limit:      limit,
		Offset:     (page - 1) * limit,
		IsActive:   isActive,
		Department: department,
	})
}

func (s *RuleService) GetRuleByID(ctx context.Context, id string) (*domain.RuleWithDetails, error) {
	return s.repo.GetRuleByID(ctx, id)
}

func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	err := s.repo.Transact(ctx, func(w domain.RuleWriter) error {
		return w.DeleteRule(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	s.logger.Info("rule deleted", slog.String("rule_id", id))
	return nil
}

func (s *RuleService) GetRulesByDepartment(ctx context.Context, department string, page, limit int, isActive *bool) (*domain.RulePage, error) {
	page, limit = NormalizePage(page, limit)
	return s.repo.GetRulesByDepartment(ctx, department, limit, (page-1)*limit, isActive)
}

// ToggleRuleStatus flips the active flag and returns the new value
func (s *RuleService) ToggleRuleStatus(ctx context.Context, id, actor string) (bool, error) {
	active, err := s.repo.ToggleRuleStatus(ctx, id, actor)
	if err != nil {
		return false, fmt.Errorf("failed to toggle rule %s: %w", id, err)
	}
	s.logger.Info("rule toggled", slog.String("rule_id", id), slog.Bool("is_active", active))
	return active, nil
}

func (s *RuleService) GetRuleStats(ctx context.Context) (*domain.RuleStats, error) {
	return s.repo.GetRuleStats(ctx)
}

func (s *RuleService) GetDepartments(ctx context.Context) ([]string, error) {
	return s.repo.GetDepartments(ctx)
}

// NormalizePage clamps page to >= 1 and limit to [1, MaxLimit]
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func validateParsedRule(p *domain.ParsedRule) error {
	if p == nil {
		return fmt.Errorf("%w: rule is required", domain.ErrValidation)
	}
	if p.Rejected() {
		return fmt.Errorf("%w: %s", domain.ErrValidation, p.Error)
	}
	if strings.TrimSpace(p.Rule.Title) == "" {
		return fmt.Errorf("%w: rule title is required", domain.ErrValidation)
	}
	return validateClauses(p.Conditions, p.Actions)
}

// validateClauses checks conditions and actions and rewrites each condition's
// operator into its canonical form in place.
func validateClauses(conditions []domain.ParsedCondition, actions []domain.ParsedAction) error {
	for i, c := range conditions {
		if strings.TrimSpace(c.Field) == "" || strings.TrimSpace(c.Operator) == "" {
			return fmt.Errorf("%w: condition %d needs a field and an operator", domain.ErrValidation, i)
		}
		conditions[i].Operator = nlp.NormalizeOperator(c.Operator)
	}
	for i, a := range actions {
		if strings.TrimSpace(a.Type) == "" {
			return fmt.Errorf("%w: action %d needs a type", domain.ErrValidation, i)
		}
	}
	return nil
}

func conditionRows(ruleID string, in []domain.ParsedCondition, actor string, update bool) []domain.RuleCondition {
	out := make([]domain.RuleCondition, 0, len(in))
	for _, c := range in {
		row := domain.RuleCondition{
			RuleID:   ruleID,
			Field:    c.Field,
			Operator: c.Operator,
			Value:    c.Value,
		}
		if update {
			row.UpdatedBy = optional(actor)
		} else {
			row.CreatedBy = optional(actor)
		}
		out = append(out, row)
	}
	return out
}

func actionRows(ruleID string, in []domain.ParsedAction, actor string, update bool) []domain.RuleAction {
	out := make([]domain.RuleAction, 0, len(in))
	for _, a := range in {
		row := domain.RuleAction{
			RuleID: ruleID,
			Type:   a.Type,
			Value:  a.Value,
		}
		if update {
			row.UpdatedBy = optional(actor)
		} else {
			row.CreatedBy = optional(actor)
		}
		out = append(out, row)
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
