package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/repository"
	"github.com/aryan0dhankhar/rulemaster/internal/security"
	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
	"github.com/aryan0dhankhar/rulemaster/internal/service"
)

var (
	financeAdmin = &domain.AuthenticatedUser{Username: "fa", Department: "finance", IsAdmin: true}
	financeUser  = &domain.AuthenticatedUser{Username: "fu", Department: "finance"}
	hrAdmin      = &domain.AuthenticatedUser{Username: "ha", Department: "hr", IsAdmin: true}
	superAdmin   = &domain.AuthenticatedUser{Username: "root", IsAdmin: true, IsSuperAdmin: true}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeIntents struct{ intent domain.Intent }

func (f fakeIntents) Classify(context.Context, string) (domain.Intent, error) { return f.intent, nil }
func (f fakeIntents) Answer(context.Context, string) (string, error)         { return "Hello!", nil }

type fakeGenerator struct {
	calls  int
	result *domain.ParsedRule
}

func (f *fakeGenerator) GenerateRule(context.Context, string, string) (*domain.ParsedRule, error) {
	f.calls++
	return f.result, nil
}

type testServer struct {
	mux   *http.ServeMux
	rules *service.RuleService
	gen   *fakeGenerator
}

func newTestServer(intent domain.Intent) *testServer {
	log := quietLogger()
	rules := service.NewRuleService(repository.NewMemoryRuleRepository(), log)
	authz := security.NewAuthorizationService(nil, log)
	access := security.NewRuleAccess(log)
	gen := &fakeGenerator{result: parsedRule("Senior", "")}
	chat := service.NewChatService(fakeIntents{intent: intent}, gen, rules, authz, access, true, log)

	rh := NewRuleHandler(rules, authz, access, nil, log)
	ch := NewChatHandler(chat, nil, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rules", rh.Create)
	mux.HandleFunc("GET /api/v1/rules", rh.List)
	mux.HandleFunc("GET /api/v1/rules/departments", rh.Departments)
	mux.HandleFunc("GET /api/v1/rules/stats/rules", rh.Stats)
	mux.HandleFunc("GET /api/v1/rules/department/{department}", rh.ListByDepartment)
	mux.HandleFunc("GET /api/v1/rules/{id}", rh.Get)
	mux.HandleFunc("PUT /api/v1/rules/{id}", rh.Update)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", rh.Delete)
	mux.HandleFunc("PATCH /api/v1/rules/{id}/toggle", rh.Toggle)
	mux.HandleFunc("POST /api/v1/rules/nlp", ch.ParseRule)
	mux.HandleFunc("POST /api/v1/chat/ai", ch.Chat)
	return &testServer{mux: mux, rules: rules, gen: gen}
}

func parsedRule(title, dept string) *domain.ParsedRule {
	return &domain.ParsedRule{
		Rule:  domain.ParsedRuleHeader{Title: title, Department: dept},
		Logic: "c1",
		Conditions: []domain.ParsedCondition{
			{ID: "c1", Field: "age", Operator: ">", Value: domain.RawValue(`60`)},
		},
		Actions: []domain.ParsedAction{{Type: "tag", Value: domain.RawValue(`"senior"`)}},
	}
}

func (s *testServer) seed(t *testing.T, dept string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.rules.ProcessAndStoreRule(context.Background(), parsedRule("r", dept), "seed")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *testServer) do(user *domain.AuthenticatedUser, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not a JSON object: %q", rec.Body.String())
	}
	return out
}

func TestListIgnoresRequestedDepartmentForNonSuperAdmin(t *testing.T) {
	s := newTestServer(domain.IntentCasual)
	s.seed(t, "finance", 3)
	s.seed(t, "hr", 2)

	rec := s.do(financeUser, http.MethodGet, "/api/v1/rules?department=hr", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if total := decode(t, rec)["total"].(float64); total != 3 {
		t.Fatalf("finance user saw %v rules", total)
	}

	rec = s.do(superAdmin, http.MethodGet, "/api/v1/rules?department=hr", "")
	if total := decode(t, rec)["total"].(float64); total != 2 {
		t.Fatalf("super-admin filter: %v rules", total)
	}

	rec = s.do(financeUser, http.MethodGet, "/api/v1/rules/department/hr", "")
	if total := decode(t, rec)["total"].(float64); total != 3 {
		t.Fatalf("path department not overridden: %v rules", total)
	}

	rec = s.do(&domain.AuthenticatedUser{Username: "x"}, http.MethodGet, "/api/v1/rules", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("caller without department: %d", rec.Code)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestServer(domain.IntentCasual)
	s.seed(t, "finance", 25)

	rec := s.do(financeUser, http.MethodGet, "/api/v1/rules?page=2&limit=10", "")
	body := decode(t, rec)
	if n := len(body["data"].([]interface{})); n != 10 || body["total"].(float64) != 25 {
		t.Fatalf("page 2: %d rows, total %v", n, body["total"])
	}

	rec = s.do(financeUser, http.MethodGet, "/api/v1/rules?is_active=maybe", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad is_active: %d", rec.Code)
	}
}

func TestRuleOutsideDepartmentIsNotFound(t *testing.T) {
	s := newTestServer(domain.IntentCasual)
	id := s.seed(t, "hr", 1)[0]

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/api/v1/rules/" + id, ""},
		{http.MethodPut, "/api/v1/rules/" + id, `{"title":"x"}`},
		{http.MethodDelete, "/api/v1/rules/" + id, ""},
		{http.MethodPatch, "/api/v1/rules/" + id + "/toggle", ""},
	} {
		if rec := s.do(financeAdmin, tc.method, tc.target, tc.body); rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: status %d", tc.method, tc.target, rec.Code)
		}
	}

	if rec := s.do(hrAdmin, http.MethodGet, "/api/v1/rules/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("own department: %d", rec.Code)
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	s := newTestServer(domain.IntentCasual)
	id := s.seed(t, "finance", 1)[0]

	if rec := s.do(financeUser, http.MethodDelete, "/api/v1/rules/"+id, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin delete: %d", rec.Code)
	}
	rec := s.do(financeAdmin, http.MethodPatch, "/api/v1/rules/"+id+"/toggle", "")
	if rec.Code != http.StatusOK || decode(t, rec)["is_active"] != false {
		t.Fatalf("toggle: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(financeAdmin, http.MethodPut, "/api/v1/rules/"+id, `{"department":"hr"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("moving rule across departments: %d", rec.Code)
	}
	if rec := s.do(financeAdmin, http.MethodDelete, "/api/v1/rules/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("admin delete: %d", rec.Code)
	}
}

func TestManualCreate(t *testing.T) {
	s := newTestServer(domain.IntentCasual)
	body := `{"rule":{"title":"Senior"},"logic":"c1","conditions":[{"id":"c1","field":"age","operator":">","value":60}],"actions":[{"type":"tag","value":"senior"}]}`

	rec := s.do(financeAdmin, http.MethodPost, "/api/v1/rules", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	id := decode(t, rec)["ruleId"].(string)
	stored, err := s.rules.GetRuleByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Department == nil || *stored.Department != "finance" || *stored.CreatedBy != "fa" {
		t.Fatalf("stored rule: %+v", stored.Rule)
	}

	if rec := s.do(financeAdmin, http.MethodPost, "/api/v1/rules", `{"rule":{"title":""}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank title: %d", rec.Code)
	}
	if rec := s.do(financeUser, http.MethodPost, "/api/v1/rules", body); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: %d", rec.Code)
	}
}

func TestNLPForbiddenBeforeOracle(t *testing.T) {
	s := newTestServer(domain.IntentCreate)

	rec := s.do(financeUser, http.MethodPost, "/api/v1/rules/nlp", `{"prompt":"if age > 60 tag senior"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.gen.calls != 0 {
		t.Fatalf("oracle called %d times", s.gen.calls)
	}

	rec = s.do(financeAdmin, http.MethodPost, "/api/v1/rules/nlp", `{"prompt":"if age > 60 tag senior"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin status = %d", rec.Code)
	}
	if body := decode(t, rec); body["ruleId"] == "" || body["parsedRule"] == nil {
		t.Fatalf("body: %v", body)
	}
}

func TestNLPRuleForOtherDepartmentIs403(t *testing.T) {
	s := newTestServer(domain.IntentCreate)
	s.gen.result = parsedRule("Payroll", "hr")

	rec := s.do(financeAdmin, http.MethodPost, "/api/v1/rules/nlp", `{"prompt":"create a payroll rule"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = s.do(financeAdmin, http.MethodPost, "/api/v1/chat/ai", `{"prompt":"create a payroll rule"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("chat status = %d", rec.Code)
	}
	stats, _ := s.rules.GetRuleStats(context.Background())
	if stats.TotalRules != 0 {
		t.Fatalf("stored %d rules", stats.TotalRules)
	}
}

func TestChatRejectedPromptIs400(t *testing.T) {
	s := newTestServer(domain.IntentCreate)
	s.gen.result = &domain.ParsedRule{Error: "Rule does not belong to the finance department"}

	rec := s.do(financeAdmin, http.MethodPost, "/api/v1/chat/ai", `{"prompt":"create an hr rule"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := decode(t, rec)["error"]; msg != "Rule does not belong to the finance department" {
		t.Fatalf("error = %v", msg)
	}
}

func TestChatListAndCasual(t *testing.T) {
	s := newTestServer(domain.IntentList)
	s.seed(t, "finance", 2)
	s.seed(t, "hr", 1)

	rec := s.do(financeUser, http.MethodPost, "/api/v1/chat/ai", `{"prompt":"show my rules"}`)
	body := decode(t, rec)
	if rec.Code != http.StatusOK || body["count"].(float64) != 2 {
		t.Fatalf("list: %d %v", rec.Code, body)
	}

	s = newTestServer(domain.IntentCasual)
	rec = s.do(financeUser, http.MethodPost, "/api/v1/chat/ai", `{"prompt":"hi"}`)
	if decode(t, rec)["message"] != "Hello!" {
		t.Fatalf("casual: %s", rec.Body.String())
	}
}

func TestRespondErrorHidesInternalCause(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
		{domain.ErrMalformedOutput, http.StatusInternalServerError},
		{errors.Join(domain.ErrUpstream, errors.New("keycloak 503")), http.StatusBadGateway},
		{errors.Join(domain.ErrConflict, errors.New("dup")), http.StatusConflict},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		respondError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), quietLogger(), tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: status %d", tc.err, rec.Code)
		}
		if tc.status >= 500 && strings.Contains(rec.Body.String(), tc.err.Error()) {
			t.Fatalf("cause leaked: %s", rec.Body.String())
		}
	}
}

func TestReady(t *testing.T) {
	h := NewHealthHandler(map[string]CheckFunc{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("down") },
	}, quietLogger())

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ReadinessResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Checks["database"] != "ok" || resp.Status != "not_ready" {
		t.Fatalf("resp: %+v", resp)
	}
}
