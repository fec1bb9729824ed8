package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// MemoryRuleRepository is an in-process domain.RuleRepository for development and tests
type MemoryRuleRepository struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	rules      map[string]domain.Rule
	seq        map[string]int64
	conditions map[string][]domain.RuleCondition
	actions    map[string][]domain.RuleAction
	next       int64
}

// NewMemoryRuleRepository creates an empty store
func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{state: newMemState(), now: time.Now}
}

func newMemState() *memState {
	return &memState{
		rules:      map[string]domain.Rule{},
		seq:        map[string]int64{},
		conditions: map[string][]domain.RuleCondition{},
		actions:    map[string][]domain.RuleAction{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.next = s.next
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.conditions {
		c.conditions[k] = append([]domain.RuleCondition(nil), v...)
	}
	for k, v := range s.actions {
		c.actions[k] = append([]domain.RuleAction(nil), v...)
	}
	return c
}

// memWriter applies writes to a state the caller has already locked
type memWriter struct {
	state *memState
	now   func() time.Time
}

// Transact runs fn under the store lock and restores the previous state if fn fails.
// fn must only use the writer it is given.
func (r *MemoryRuleRepository) Transact(ctx context.Context, fn func(w domain.RuleWriter) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(&memWriter{state: r.state, now: r.now}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *MemoryRuleRepository) writer() *memWriter {
	return &memWriter{state: r.state, now: r.now}
}

// CreateRule stores a new rule
func (r *MemoryRuleRepository) CreateRule(ctx context.Context, rule *domain.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().CreateRule(ctx, rule)
}

// CreateRuleConditions stores conditions
func (r *MemoryRuleRepository) CreateRuleConditions(ctx context.Context, conditions []domain.RuleCondition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().CreateRuleConditions(ctx, conditions)
}

// CreateRuleActions stores actions
func (r *MemoryRuleRepository) CreateRuleActions(ctx context.Context, actions []domain.RuleAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().CreateRuleActions(ctx, actions)
}

// UpdateRule applies a patch
func (r *MemoryRuleRepository) UpdateRule(ctx context.Context, id string, update domain.RuleUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().UpdateRule(ctx, id, update)
}

// DeleteRule removes a rule with its conditions and actions
func (r *MemoryRuleRepository) DeleteRule(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().DeleteRule(ctx, id)
}

// DeleteRuleConditions removes the conditions of a rule
func (r *MemoryRuleRepository) DeleteRuleConditions(ctx context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().DeleteRuleConditions(ctx, ruleID)
}

// DeleteRuleActions removes the actions of a rule
func (r *MemoryRuleRepository) DeleteRuleActions(ctx context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer().DeleteRuleActions(ctx, ruleID)
}

func (w *memWriter) CreateRule(_ context.Context, rule *domain.Rule) error {
	now := w.now()
	rule.ID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	w.state.next++
	w.state.rules[rule.ID] = *rule
	w.state.seq[rule.ID] = w.state.next
	return nil
}

func (w *memWriter) CreateRuleConditions(_ context.Context, conditions []domain.RuleCondition) error {
	now := w.now()
	for _, c := range conditions {
		if _, ok := w.state.rules[c.RuleID]; !ok {
			return fmt.Errorf("create rule conditions: %w", domain.ErrNotFound)
		}
		c.ID = uuid.NewString()
		c.CreatedAt = now
		c.UpdatedAt = now
		w.state.conditions[c.RuleID] = append(w.state.conditions[c.RuleID], c)
	}
	return nil
}

func (w *memWriter) CreateRuleActions(_ context.Context, actions []domain.RuleAction) error {
	now := w.now()
	for _, a := range actions {
		if _, ok := w.state.rules[a.RuleID]; !ok {
			return fmt.Errorf("create rule actions: %w", domain.ErrNotFound)
		}
		a.ID = uuid.NewString()
		a.CreatedAt = now
		a.UpdatedAt = now
		w.state.actions[a.RuleID] = append(w.state.actions[a.RuleID], a)
	}
	return nil
}

func (w *memWriter) UpdateRule(_ context.Context, id string, update domain.RuleUpdate) error {
	rule, ok := w.state.rules[id]
	if !ok {
		return fmt.Errorf("update rule: %w", domain.ErrNotFound)
	}
	if update.Title != nil {
		rule.Title = *update.Title
	}
	if update.Department != nil {
		rule.Department = nullString(*update.Department)
	}
	if update.Logic != nil {
		rule.Logic = nullString(*update.Logic)
	}
	if update.IsActive != nil {
		rule.IsActive = *update.IsActive
	}
	rule.UpdatedBy = nullString(update.UpdatedBy)
	rule.UpdatedAt = w.now()
	w.state.rules[id] = rule
	return nil
}

func (w *memWriter) DeleteRule(ctx context.Context, id string) error {
	if _, ok := w.state.rules[id]; !ok {
		return fmt.Errorf("delete rule: %w", domain.ErrNotFound)
	}
	w.DeleteRuleConditions(ctx, id)
	w.DeleteRuleActions(ctx, id)
	delete(w.state.rules, id)
	delete(w.state.seq, id)
	return nil
}

func (w *memWriter) DeleteRuleConditions(_ context.Context, ruleID string) error {
	delete(w.state.conditions, ruleID)
	return nil
}

func (w *memWriter) DeleteRuleActions(_ context.Context, ruleID string) error {
	delete(w.state.actions, ruleID)
	return nil
}

// GetAllRules returns one page of rules, newest first
func (r *MemoryRuleRepository) GetAllRules(_ context.Context, filter domain.RuleFilter) (*domain.RulePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]domain.Rule, 0, len(r.state.rules))
	for _, rule := range r.state.rules {
		if filter.IsActive != nil && rule.IsActive != *filter.IsActive {
			continue
		}
		if filter.Department != nil {
			if rule.Department == nil || !strings.EqualFold(*rule.Department, *filter.Department) {
				continue
			}
		}
		matched = append(matched, rule)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return r.state.seq[matched[i].ID] > r.state.seq[matched[j].ID]
	})

	page := &domain.RulePage{Rules: []domain.RuleWithDetails{}, Total: len(matched)}
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit >= 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	for _, rule := range matched[start:end] {
		page.Rules = append(page.Rules, r.detailsLocked(rule))
	}
	return page, nil
}

// GetRulesByDepartment lists rules of one department, matched case-insensitively
func (r *MemoryRuleRepository) GetRulesByDepartment(ctx context.Context, department string, limit, offset int, isActive *bool) (*domain.RulePage, error) {
	return r.GetAllRules(ctx, domain.RuleFilter{Limit: limit, Offset: offset, IsActive: isActive, Department: &department})
}

// GetRuleByID retrieves one rule with its details
func (r *MemoryRuleRepository) GetRuleByID(_ context.Context, id string) (*domain.RuleWithDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.state.rules[id]
	if !ok {
		return nil, fmt.Errorf("get rule: %w", domain.ErrNotFound)
	}
	d := r.detailsLocked(rule)
	return &d, nil
}

// ToggleRuleStatus flips the active flag under the store lock
func (r *MemoryRuleRepository) ToggleRuleStatus(_ context.Context, id, updatedBy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.state.rules[id]
	if !ok {
		return false, fmt.Errorf("toggle rule status: %w", domain.ErrNotFound)
	}
	rule.IsActive = !rule.IsActive
	rule.UpdatedBy = nullString(updatedBy)
	rule.UpdatedAt = r.now()
	r.state.rules[id] = rule
	return rule.IsActive, nil
}

// GetRuleStats aggregates counts
func (r *MemoryRuleRepository) GetRuleStats(_ context.Context) (*domain.RuleStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &domain.RuleStats{TotalRules: len(r.state.rules)}
	departments := map[string]struct{}{}
	for _, rule := range r.state.rules {
		if rule.IsActive {
			stats.ActiveRules++
		} else {
			stats.InactiveRules++
		}
		if rule.Department != nil {
			departments[strings.ToLower(*rule.Department)] = struct{}{}
		}
	}
	stats.TotalDepartments = len(departments)
	return stats, nil
}

// GetDepartments lists distinct non-empty departments ignoring case, sorted by
// their lowercase form. The smallest spelling of each department is kept.
func (r *MemoryRuleRepository) GetDepartments(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	spelling := map[string]string{}
	for _, rule := range r.state.rules {
		if rule.Department == nil || *rule.Department == "" {
			continue
		}
		key := strings.ToLower(*rule.Department)
		if cur, ok := spelling[key]; !ok || *rule.Department < cur {
			spelling[key] = *rule.Department
		}
	}
	keys := make([]string, 0, len(spelling))
	for k := range spelling {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, spelling[k])
	}
	return out, nil
}

func (r *MemoryRuleRepository) detailsLocked(rule domain.Rule) domain.RuleWithDetails {
	return domain.RuleWithDetails{
		Rule:       rule,
		Conditions: append([]domain.RuleCondition{}, r.state.conditions[rule.ID]...),
		Actions:    append([]domain.RuleAction{}, r.state.actions[rule.ID]...),
	}
}
