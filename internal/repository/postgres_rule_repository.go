package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

const ruleColumns = `id, title, department, logic, is_active, created_by, updated_by, created_at, updated_at`

// PostgresRuleRepository implements domain.RuleRepository using PostgreSQL
type PostgresRuleRepository struct {
	*pgRuleWriter
	db *sqlx.DB
}

// pgRuleWriter issues rule writes against either the pool or an open transaction
type pgRuleWriter struct {
	ext    sqlx.ExtContext
	logger *slog.Logger
}

// NewPostgresRuleRepository creates a new rule repository
func NewPostgresRuleRepository(db *sqlx.DB, logger *slog.Logger) *PostgresRuleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRuleRepository{
		pgRuleWriter: &pgRuleWriter{ext: db, logger: logger},
		db:           db,
	}
}

// Transact runs fn inside a database transaction
func (r *PostgresRuleRepository) Transact(ctx context.Context, fn func(w domain.RuleWriter) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&pgRuleWriter{ext: tx, logger: r.logger}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("transaction rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateRule inserts the rule row and fills in its generated id and timestamps
func (w *pgRuleWriter) CreateRule(ctx context.Context, rule *domain.Rule) error {
	query := w.ext.Rebind(`
		INSERT INTO rules (title, department, logic, is_active, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, created_at, updated_at
	`)
	err := w.ext.QueryRowxContext(ctx, query,
		rule.Title, rule.Department, rule.Logic, rule.IsActive, rule.CreatedBy, rule.UpdatedBy,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return mapError(err, "create rule")
	}
	return nil
}

// CreateRuleConditions batch inserts conditions
func (w *pgRuleWriter) CreateRuleConditions(ctx context.Context, conditions []domain.RuleCondition) error {
	if len(conditions) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, w.ext, `
		INSERT INTO rule_conditions (rule_id, field, operator, value, created_by, updated_by)
		VALUES (:rule_id, :field, :operator, :value, :created_by, :updated_by)
	`, conditions)
	if err != nil {
		return mapError(err, "create rule conditions")
	}
	return nil
}

// CreateRuleActions batch inserts actions
func (w *pgRuleWriter) CreateRuleActions(ctx context.Context, actions []domain.RuleAction) error {
	if len(actions) == 0 {
		return nil
	}
	_, err := sqlx.NamedExecContext(ctx, w.ext, `
		INSERT INTO rule_actions (rule_id, type, value, created_by, updated_by)
		VALUES (:rule_id, :type, :value, :created_by, :updated_by)
	`, actions)
	if err != nil {
		return mapError(err, "create rule actions")
	}
	return nil
}

// UpdateRule applies the non-nil fields of update
func (w *pgRuleWriter) UpdateRule(ctx context.Context, id string, update domain.RuleUpdate) error {
	sets := []string{"updated_by = ?", "updated_at = now()"}
	args := []interface{}{nullString(update.UpdatedBy)}
	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Department != nil {
		sets = append(sets, "department = ?")
		args = append(args, nullString(*update.Department))
	}
	if update.Logic != nil {
		sets = append(sets, "logic = ?")
		args = append(args, nullString(*update.Logic))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *update.IsActive)
	}
	args = append(args, id)

	query := w.ext.Rebind(`UPDATE rules SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := w.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "update rule")
	}
	return expectRow(res, "update rule")
}

// DeleteRule removes conditions, actions, then the rule itself
func (w *pgRuleWriter) DeleteRule(ctx context.Context, id string) error {
	if err := w.DeleteRuleConditions(ctx, id); err != nil {
		return err
	}
	if err := w.DeleteRuleActions(ctx, id); err != nil {
		return err
	}
	res, err := w.ext.ExecContext(ctx, w.ext.Rebind(`DELETE FROM rules WHERE id = ?`), id)
	if err != nil {
		return mapError(err, "delete rule")
	}
	return expectRow(res, "delete rule")
}

// DeleteRuleConditions removes every condition of a rule
func (w *pgRuleWriter) DeleteRuleConditions(ctx context.Context, ruleID string) error {
	if _, err := w.ext.ExecContext(ctx, w.ext.Rebind(`DELETE FROM rule_conditions WHERE rule_id = ?`), ruleID); err != nil {
		return mapError(err, "delete rule conditions")
	}
	return nil
}

// DeleteRuleActions removes every action of a rule
func (w *pgRuleWriter) DeleteRuleActions(ctx context.Context, ruleID string) error {
	if _, err := w.ext.ExecContext(ctx, w.ext.Rebind(`DELETE FROM rule_actions WHERE rule_id = ?`), ruleID); err != nil {
		return mapError(err, "delete rule actions")
	}
	return nil
}

// GetAllRules returns one page of rules, newest first, with the total under the same filter
func (r *PostgresRuleRepository) GetAllRules(ctx context.Context, filter domain.RuleFilter) (*domain.RulePage, error) {
	var where []string
	var args []interface{}
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.Department != nil {
		where = append(where, "lower(department) = lower(?)")
		args = append(args, *filter.Department)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(`SELECT count(*) FROM rules`+clause), args...); err != nil {
		return nil, mapError(err, "count rules")
	}

	rows := []domain.Rule{}
	query := r.db.Rebind(`SELECT ` + ruleColumns + ` FROM rules` + clause + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, append(args, filter.Limit, filter.Offset)...); err != nil {
		return nil, mapError(err, "list rules")
	}

	rules, err := r.withDetails(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &domain.RulePage{Rules: rules, Total: total}, nil
}

// GetRulesByDepartment lists rules of one department, matched case-insensitively
func (r *PostgresRuleRepository) GetRulesByDepartment(ctx context.Context, department string, limit, offset int, isActive *bool) (*domain.RulePage, error) {
	return r.GetAllRules(ctx, domain.RuleFilter{
		Limit:      limit,
		Offset:     offset,
		IsActive:   isActive,
		Department: &department,
	})
}

// GetRuleByID retrieves a rule with its conditions and actions
func (r *PostgresRuleRepository) GetRuleByID(ctx context.Context, id string) (*domain.RuleWithDetails, error) {
	var rule domain.Rule
	if err := sqlx.GetContext(ctx, r.db, &rule, r.db.Rebind(`SELECT `+ruleColumns+` FROM rules WHERE id = ?`), id); err != nil {
		return nil, mapError(err, "get rule")
	}
	rules, err := r.withDetails(ctx, []domain.Rule{rule})
	if err != nil {
		return nil, err
	}
	return &rules[0], nil
}

// ToggleRuleStatus flips is_active in a single statement and returns the new value
func (r *PostgresRuleRepository) ToggleRuleStatus(ctx context.Context, id, updatedBy string) (bool, error) {
	var active bool
	query := r.db.Rebind(`
		UPDATE rules SET is_active = NOT is_active, updated_by = ?, updated_at = now()
		WHERE id = ?
		RETURNING is_active
	`)
	if err := r.db.QueryRowxContext(ctx, query, nullString(updatedBy), id).Scan(&active); err != nil {
		return false, mapError(err, "toggle rule status")
	}
	return active, nil
}

// GetRuleStats aggregates rule counts in one query
func (r *PostgresRuleRepository) GetRuleStats(ctx context.Context) (*domain.RuleStats, error) {
	var stats domain.RuleStats
	err := sqlx.GetContext(ctx, r.db, &stats, `
		SELECT
			count(*) AS total_rules,
			count(*) FILTER (WHERE is_active) AS active_rules,
			count(*) FILTER (WHERE NOT is_active) AS inactive_rules,
			count(DISTINCT lower(department)) AS total_departments
		FROM rules
	`)
	if err != nil {
		return nil, mapError(err, "get rule stats")
	}
	return &stats, nil
}

// GetDepartments lists the distinct non-empty departments, folding case the
// same way GetRuleStats counts them. The first spelling in sort order wins.
func (r *PostgresRuleRepository) GetDepartments(ctx context.Context) ([]string, error) {
	departments := []string{}
	err := sqlx.SelectContext(ctx, r.db, &departments, `
		SELECT DISTINCT ON (lower(department)) department FROM rules
		WHERE department IS NOT NULL AND department <> ''
		ORDER BY lower(department), department COLLATE "C"
	`)
	if err != nil {
		return nil, mapError(err, "list departments")
	}
	return departments, nil
}

// withDetails loads conditions and actions for all rules with one query per table
func (r *PostgresRuleRepository) withDetails(ctx context.Context, rules []domain.Rule) ([]domain.RuleWithDetails, error) {
	out := make([]domain.RuleWithDetails, len(rules))
	if len(rules) == 0 {
		return out, nil
	}
	ids := make([]string, len(rules))
	index := make(map[string]int, len(rules))
	for i, rule := range rules {
		ids[i] = rule.ID
		index[rule.ID] = i
		out[i] = domain.RuleWithDetails{
			Rule:       rule,
			Conditions: []domain.RuleCondition{},
			Actions:    []domain.RuleAction{},
		}
	}

	var conditions []domain.RuleCondition
	err := sqlx.SelectContext(ctx, r.db, &conditions, r.db.Rebind(`
		SELECT id, rule_id, field, operator, value, created_by, updated_by, created_at, updated_at
		FROM rule_conditions WHERE rule_id = ANY(?::uuid[])
		ORDER BY created_at, id
	`), pq.Array(ids))
	if err != nil {
		return nil, mapError(err, "load rule conditions")
	}
	for _, c := range conditions {
		i := index[c.RuleID]
		out[i].Conditions = append(out[i].Conditions, c)
	}

	var actions []domain.RuleAction
	err = sqlx.SelectContext(ctx, r.db, &actions, r.db.Rebind(`
		SELECT id, rule_id, type, value, created_by, updated_by, created_at, updated_at
		FROM rule_actions WHERE rule_id = ANY(?::uuid[])
		ORDER BY created_at, id
	`), pq.Array(ids))
	if err != nil {
		return nil, mapError(err, "load rule actions")
	}
	for _, a := range actions {
		i := index[a.RuleID]
		out[i].Actions = append(out[i].Actions, a)
	}

	return out, nil
}

// mapError classifies driver errors into the domain taxonomy
func mapError(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "22P02": // invalid_text_representation, a malformed uuid
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		case "23503": // foreign_key_violation, the parent rule is gone
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		case "23505":
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func expectRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
