package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

var (
	_ domain.RuleRepository = (*MemoryRuleRepository)(nil)
	_ domain.RuleRepository = (*PostgresRuleRepository)(nil)
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T, repo *MemoryRuleRepository, title, department string, active bool) string {
	t.Helper()
	rule := &domain.Rule{Title: title, IsActive: active}
	if department != "" {
		rule.Department = strPtr(department)
	}
	if err := repo.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	return rule.ID
}

func newTestRepo() *MemoryRuleRepository {
	repo := NewMemoryRuleRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	repo.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return repo
}

func TestMemoryPaginationNewestFirst(t *testing.T) {
	repo := newTestRepo()
	var ids []string
	for i := 0; i < 25; i++ {
		ids = append(ids, seed(t, repo, "r", "", true))
	}

	page, err := repo.GetAllRules(context.Background(), domain.RuleFilter{Limit: 10, Offset: 10})
	if err != nil {
		t.Fatalf("GetAllRules: %v", err)
	}
	if page.Total != 25 || len(page.Rules) != 10 {
		t.Fatalf("expected total 25 and 10 rows, got %d/%d", page.Total, len(page.Rules))
	}
	// newest first: offset 10 starts at the 15th created rule
	if page.Rules[0].ID != ids[14] {
		t.Fatalf("unexpected first row of page 2")
	}

	last, _ := repo.GetAllRules(context.Background(), domain.RuleFilter{Limit: 10, Offset: 20})
	if len(last.Rules) != 5 || last.Total != 25 {
		t.Fatalf("expected 5 rows on last page, got %d", len(last.Rules))
	}
	beyond, _ := repo.GetAllRules(context.Background(), domain.RuleFilter{Limit: 10, Offset: 40})
	if len(beyond.Rules) != 0 || beyond.Total != 25 {
		t.Fatalf("expected empty page beyond the end")
	}
}

func TestMemoryDepartmentFilterCaseInsensitive(t *testing.T) {
	repo := newTestRepo()
	seed(t, repo, "a", "Finance", true)
	seed(t, repo, "b", "finance", false)
	seed(t, repo, "c", "sales", true)
	seed(t, repo, "d", "", true)

	page, err := repo.GetRulesByDepartment(context.Background(), "FINANCE", 10, 0, nil)
	if err != nil {
		t.Fatalf("GetRulesByDepartment: %v", err)
	}
	if page.Total != 2 || len(page.Rules) != 2 {
		t.Fatalf("expected 2 finance rules, got %d", page.Total)
	}

	active := true
	page, _ = repo.GetRulesByDepartment(context.Background(), "finance", 10, 0, &active)
	if page.Total != 1 || page.Rules[0].Title != "a" {
		t.Fatalf("expected only the active finance rule, got %+v", page.Rules)
	}

	stats, _ := repo.GetRuleStats(context.Background())
	if stats.TotalRules != 4 || stats.ActiveRules != 3 || stats.InactiveRules != 1 || stats.TotalDepartments != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	deps, _ := repo.GetDepartments(context.Background())
	if len(deps) != stats.TotalDepartments || deps[0] != "Finance" || deps[1] != "sales" {
		t.Fatalf("departments %v disagree with stats count %d", deps, stats.TotalDepartments)
	}
}

func TestMemoryToggleTwiceRestores(t *testing.T) {
	repo := newTestRepo()
	id := seed(t, repo, "r", "ops", true)

	v, err := repo.ToggleRuleStatus(context.Background(), id, "alice")
	if err != nil || v {
		t.Fatalf("first toggle: %v %v", v, err)
	}
	v, err = repo.ToggleRuleStatus(context.Background(), id, "alice")
	if err != nil || !v {
		t.Fatalf("second toggle: %v %v", v, err)
	}
	got, _ := repo.GetRuleByID(context.Background(), id)
	if got.UpdatedBy == nil || *got.UpdatedBy != "alice" {
		t.Fatalf("expected updated_by alice")
	}

	if _, err := repo.ToggleRuleStatus(context.Background(), "missing", "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTransactRollsBack(t *testing.T) {
	repo := newTestRepo()
	boom := errors.New("boom")

	err := repo.Transact(context.Background(), func(w domain.RuleWriter) error {
		rule := &domain.Rule{Title: "half-written"}
		if err := w.CreateRule(context.Background(), rule); err != nil {
			return err
		}
		if err := w.CreateRuleConditions(context.Background(), []domain.RuleCondition{{RuleID: rule.ID, Field: "x", Operator: "="}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	page, _ := repo.GetAllRules(context.Background(), domain.RuleFilter{Limit: 10})
	if page.Total != 0 {
		t.Fatalf("expected rollback, found %d rules", page.Total)
	}
}

func TestMemoryDeleteCascades(t *testing.T) {
	repo := newTestRepo()
	id := seed(t, repo, "r", "", true)
	ctx := context.Background()
	repo.CreateRuleConditions(ctx, []domain.RuleCondition{{RuleID: id, Field: "a", Operator: ">", Value: domain.RawValue("5")}})
	repo.CreateRuleActions(ctx, []domain.RuleAction{{RuleID: id, Type: "notify", Value: domain.RawValue(`"ops"`)}})

	got, _ := repo.GetRuleByID(ctx, id)
	if len(got.Conditions) != 1 || len(got.Actions) != 1 {
		t.Fatalf("expected nested details, got %+v", got)
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
}
