package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/pkg/database"
)

// newPostgresRepo connects to the database named by RULEMASTER_TEST_DB_HOST,
// applies the schema and empties the rule tables. The database is wiped, so
// point it at a throwaway instance.
func newPostgresRepo(t *testing.T) *PostgresRuleRepository {
	t.Helper()
	host := os.Getenv("RULEMASTER_TEST_DB_HOST")
	if host == "" {
		t.Skip("Postgres test requires RULEMASTER_TEST_DB_HOST pointing at a disposable database")
	}
	cfg := database.DefaultConfig()
	cfg.Host = host
	if v := os.Getenv("RULEMASTER_TEST_DB_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("RULEMASTER_TEST_DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("RULEMASTER_TEST_DB_NAME"); v != "" {
		cfg.Database = v
	}

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool, err := database.NewConnectionPool(ctx, cfg, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.GetDB().ExecContext(ctx, `TRUNCATE rules CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresRuleRepository(pool.GetDB(), log)
}

func pgSeed(t *testing.T, repo *PostgresRuleRepository, title, department string, active bool) string {
	t.Helper()
	rule := &domain.Rule{Title: title, IsActive: active, CreatedBy: strPtr("seed")}
	if department != "" {
		rule.Department = strPtr(department)
	}
	if err := repo.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return rule.ID
}

func TestPostgresCreateAndGetNestsDetails(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()

	var id string
	err := repo.Transact(ctx, func(w domain.RuleWriter) error {
		rule := &domain.Rule{Title: "Senior", Department: strPtr("finance"), Logic: strPtr("c1 AND c2"), IsActive: true}
		if err := w.CreateRule(ctx, rule); err != nil {
			return err
		}
		id = rule.ID
		if err := w.CreateRuleConditions(ctx, []domain.RuleCondition{
			{RuleID: id, Field: "age", Operator: ">", Value: domain.RawValue(`60`)},
			{RuleID: id, Field: "country", Operator: "IN", Value: domain.RawValue(`["IN", "US"]`)},
		}); err != nil {
			return err
		}
		return w.CreateRuleActions(ctx, []domain.RuleAction{{RuleID: id, Type: "tag", Value: domain.RawValue(`"senior"`)}})
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("generated id %q is not a uuid", id)
	}

	got, err := repo.GetRuleByID(ctx, id)
	if err != nil {
		t.Fatalf("GetRuleByID: %v", err)
	}
	if got.Title != "Senior" || got.Department == nil || *got.Department != "finance" || !got.IsActive {
		t.Fatalf("unexpected rule %+v", got.Rule)
	}
	if len(got.Conditions) != 2 || len(got.Actions) != 1 {
		t.Fatalf("expected 2 conditions and 1 action, got %d/%d", len(got.Conditions), len(got.Actions))
	}
	if got.Conditions[0].RuleID != id || got.Conditions[0].Value.String() != "60" {
		t.Fatalf("unexpected condition %+v", got.Conditions[0])
	}
	if got.Actions[0].Value.String() != `"senior"` {
		t.Fatalf("unexpected action value %s", got.Actions[0].Value)
	}
}

func TestPostgresPaginationKeepsFullTotal(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		pgSeed(t, repo, "r", "ops", i%5 != 0)
	}

	first, err := repo.GetAllRules(ctx, domain.RuleFilter{Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("GetAllRules: %v", err)
	}
	second, err := repo.GetAllRules(ctx, domain.RuleFilter{Limit: 10, Offset: 10})
	if err != nil {
		t.Fatalf("GetAllRules: %v", err)
	}
	if second.Total != 25 || len(second.Rules) != 10 {
		t.Fatalf("expected total 25 and 10 rows, got %d/%d", second.Total, len(second.Rules))
	}
	seen := map[string]bool{}
	for _, r := range first.Rules {
		seen[r.ID] = true
	}
	for i, r := range second.Rules {
		if seen[r.ID] {
			t.Fatalf("rule %s on both pages", r.ID)
		}
		if i > 0 && r.CreatedAt.After(second.Rules[i-1].CreatedAt) {
			t.Fatalf("page not ordered newest first")
		}
	}
	if first.Rules[9].CreatedAt.Before(second.Rules[0].CreatedAt) {
		t.Fatalf("second page starts before the first ends")
	}

	active := false
	page, err := repo.GetRulesByDepartment(ctx, "OPS", 10, 0, &active)
	if err != nil {
		t.Fatalf("GetRulesByDepartment: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected 5 inactive ops rules, got %d", page.Total)
	}
}

func TestPostgresToggleTwiceRestores(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	id := pgSeed(t, repo, "r", "ops", true)

	v, err := repo.ToggleRuleStatus(ctx, id, "alice")
	if err != nil || v {
		t.Fatalf("first toggle: %v %v", v, err)
	}
	v, err = repo.ToggleRuleStatus(ctx, id, "alice")
	if err != nil || !v {
		t.Fatalf("second toggle: %v %v", v, err)
	}
	got, _ := repo.GetRuleByID(ctx, id)
	if got.UpdatedBy == nil || *got.UpdatedBy != "alice" {
		t.Fatalf("expected updated_by alice")
	}

	if _, err := repo.ToggleRuleStatus(ctx, uuid.NewString(), "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("toggle of missing rule: %v", err)
	}
}

func TestPostgresMalformedIDIsNotFound(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()

	if _, err := repo.GetRuleByID(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRuleByID: %v", err)
	}
	if _, err := repo.ToggleRuleStatus(ctx, "not-a-uuid", "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ToggleRuleStatus: %v", err)
	}
	if err := repo.UpdateRule(ctx, "not-a-uuid", domain.RuleUpdate{Title: strPtr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateRule: %v", err)
	}
	if err := repo.DeleteRule(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("DeleteRule: %v", err)
	}

	// conditions for a rule that does not exist violate the foreign key
	err := repo.CreateRuleConditions(ctx, []domain.RuleCondition{{RuleID: uuid.NewString(), Field: "a", Operator: "="}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("orphan condition: %v", err)
	}
}

func TestPostgresUpdateAppliesOnlySetFields(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	id := pgSeed(t, repo, "before", "finance", true)

	inactive := false
	err := repo.UpdateRule(ctx, id, domain.RuleUpdate{
		Title:      strPtr("after"),
		Department: strPtr(""),
		IsActive:   &inactive,
		UpdatedBy:  "bob",
	})
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	got, _ := repo.GetRuleByID(ctx, id)
	if got.Title != "after" || got.IsActive || got.Department != nil {
		t.Fatalf("update not applied: %+v", got.Rule)
	}
	if got.CreatedBy == nil || *got.CreatedBy != "seed" || got.UpdatedBy == nil || *got.UpdatedBy != "bob" {
		t.Fatalf("audit fields: created_by=%v updated_by=%v", got.CreatedBy, got.UpdatedBy)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("updated_at not advanced")
	}

	if err := repo.UpdateRule(ctx, uuid.NewString(), domain.RuleUpdate{Title: strPtr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update of missing rule: %v", err)
	}
}

func TestPostgresStatsAndDepartmentsFoldCase(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	pgSeed(t, repo, "a", "Finance", true)
	pgSeed(t, repo, "b", "finance", false)
	pgSeed(t, repo, "c", "sales", true)
	pgSeed(t, repo, "d", "", true)

	stats, err := repo.GetRuleStats(ctx)
	if err != nil {
		t.Fatalf("GetRuleStats: %v", err)
	}
	if stats.TotalRules != 4 || stats.ActiveRules != 3 || stats.InactiveRules != 1 || stats.TotalDepartments != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	deps, err := repo.GetDepartments(ctx)
	if err != nil {
		t.Fatalf("GetDepartments: %v", err)
	}
	if len(deps) != 2 || deps[0] != "Finance" || deps[1] != "sales" {
		t.Fatalf("unexpected departments %v", deps)
	}
}

func TestPostgresDeleteCascadesAndTransactRollsBack(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	id := pgSeed(t, repo, "r", "ops", true)
	if err := repo.CreateRuleConditions(ctx, []domain.RuleCondition{{RuleID: id, Field: "a", Operator: ">", Value: domain.RawValue("5")}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateRuleActions(ctx, []domain.RuleAction{{RuleID: id, Type: "notify", Value: domain.RawValue(`"ops"`)}}); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteRule(ctx, id); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := repo.GetRuleByID(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeleteRule(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	boom := errors.New("boom")
	err := repo.Transact(ctx, func(w domain.RuleWriter) error {
		if err := w.CreateRule(ctx, &domain.Rule{Title: "half-written"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	page, _ := repo.GetAllRules(ctx, domain.RuleFilter{Limit: 10})
	if page.Total != 0 {
		t.Fatalf("expected rollback, found %d rules", page.Total)
	}
}
