package domain

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Rule represents a stored business rule
type Rule struct {
	ID         string    `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Department *string   `db:"department" json:"department"`
	Logic      *string   `db:"logic" json:"logic,omitempty"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedBy  *string   `db:"created_by" json:"created_by"`
	UpdatedBy  *string   `db:"updated_by" json:"updated_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// RuleCondition is one comparison clause of a rule
type RuleCondition struct {
	ID        string    `db:"id" json:"id"`
	RuleID    string    `db:"rule_id" json:"rule_id"`
	Field     string    `db:"field" json:"field"`
	Operator  string    `db:"operator" json:"operator"`
	Value     RawValue  `db:"value" json:"value"`
	CreatedBy *string   `db:"created_by" json:"created_by"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RuleAction is one effect clause of a rule
type RuleAction struct {
	ID        string    `db:"id" json:"id"`
	RuleID    string    `db:"rule_id" json:"rule_id"`
	Type      string    `db:"type" json:"type"`
	Value     RawValue  `db:"value" json:"value"`
	CreatedBy *string   `db:"created_by" json:"created_by"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RuleWithDetails is a rule with its conditions and actions nested under it
type RuleWithDetails struct {
	Rule
	Conditions []RuleCondition `json:"rule_conditions"`
	Actions    []RuleAction    `json:"rule_actions"`
}

// RuleFilter narrows a paginated rule listing
type RuleFilter struct {
	Limit      int
	Offset     int
	IsActive   *bool
	Department *string // matched case-insensitively
}

// RulePage is one window of a listing plus the total under the same filter
type RulePage struct {
	Rules []RuleWithDetails `json:"rules"`
	Total int               `json:"total"`
}

// RuleStats holds aggregate rule counts
type RuleStats struct {
	TotalRules       int `db:"total_rules" json:"totalRules"`
	ActiveRules      int `db:"active_rules" json:"activeRules"`
	InactiveRules    int `db:"inactive_rules" json:"inactiveRules"`
	TotalDepartments int `db:"total_departments" json:"totalDepartments"`
}

// RuleUpdate carries the scalar fields of a rule update. Nil fields are left unchanged.
type RuleUpdate struct {
	Title      *string
	Department *string
	Logic      *string
	IsActive   *bool
	UpdatedBy  string
}

// RuleWriter is the write surface of the rule store. It is what a transaction exposes.
type RuleWriter interface {
	CreateRule(ctx context.Context, rule *Rule) error
	CreateRuleConditions(ctx context.Context, conditions []RuleCondition) error
	CreateRuleActions(ctx context.Context, actions []RuleAction) error
	UpdateRule(ctx context.Context, id string, update RuleUpdate) error
	DeleteRule(ctx context.Context, id string) error
	DeleteRuleConditions(ctx context.Context, ruleID string) error
	DeleteRuleActions(ctx context.Context, ruleID string) error
}

// RuleRepository defines data access for rules, conditions and actions
type RuleRepository interface {
	RuleWriter

	GetAllRules(ctx context.Context, filter RuleFilter) (*RulePage, error)
	GetRuleByID(ctx context.Context, id string) (*RuleWithDetails, error)
	GetRulesByDepartment(ctx context.Context, department string, limit, offset int, isActive *bool) (*RulePage, error)
	ToggleRuleStatus(ctx context.Context, id, updatedBy string) (bool, error)
	GetRuleStats(ctx context.Context) (*RuleStats, error)
	GetDepartments(ctx context.Context) ([]string, error)

	// Transact runs fn atomically. Writes made through the supplied writer are
	// discarded if fn returns an error.
	Transact(ctx context.Context, fn func(w RuleWriter) error) error
}

// RawValue is a loosely typed JSON value (scalar or list) stored as JSONB
type RawValue json.RawMessage

// MarshalJSON emits the value verbatim, or null when empty
func (v RawValue) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// UnmarshalJSON keeps a copy of the raw bytes
func (v *RawValue) UnmarshalJSON(data []byte) error {
	if v == nil {
		return fmt.Errorf("RawValue: UnmarshalJSON on nil pointer")
	}
	*v = append((*v)[0:0], data...)
	return nil
}

// Value implements driver.Valuer. JSONB columns take the text form.
func (v RawValue) Value() (driver.Value, error) {
	if len(v) == 0 {
		return "null", nil
	}
	return string(v), nil
}

// Scan implements sql.Scanner
func (v *RawValue) Scan(src interface{}) error {
	switch s := src.(type) {
	case nil:
		*v = nil
	case []byte:
		*v = append((*v)[0:0], s...)
	case string:
		*v = RawValue(s)
	default:
		return fmt.Errorf("RawValue: cannot scan %T", src)
	}
	return nil
}

// String renders the raw JSON for logs and CLI output
func (v RawValue) String() string {
	if len(v) == 0 {
		return "null"
	}
	return string(v)
}
