package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/security"
	"github.com/aryan0dhankhar/rulemaster/internal/security/audit"
	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
	"github.com/aryan0dhankhar/rulemaster/internal/service"
)

// RuleHandler serves the rule CRUD endpoints
type RuleHandler struct {
	rules  *service.RuleService
	authz  *security.AuthorizationService
	access *security.RuleAccess
	audit  *audit.Logger
	logger *slog.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(
	rules *service.RuleService,
	authz *security.AuthorizationService,
	access *security.RuleAccess,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *RuleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &RuleHandler{rules: rules, authz: authz, access: access, audit: auditLog, logger: logger}
}

// Create handles POST /api/v1/rules with a ParsedRule body
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.authz.RequireAdmin(user); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var parsed domain.ParsedRule
	if err := decodeJSON(r, &parsed); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !user.IsSuperAdmin {
		if parsed.Rule.Department == "" {
			parsed.Rule.Department = user.Department
		} else if !user.CanSeeDepartment(parsed.Rule.Department) {
			respondError(w, r, h.logger, fmt.Errorf("%w: rule department must be %s", domain.ErrForbidden, user.Department))
			return
		}
	}

	id, err := h.rules.ProcessAndStoreRule(r.Context(), &parsed, user.Username)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogRuleChange(r.Context(), user.Username, user.Department, "rule.create", id)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Rule created", "ruleId": id})
}

// List handles GET /api/v1/rules?page=&limit=&is_active=&department=
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	q := r.URL.Query()

	isActive, err := parseBoolParam(q.Get("is_active"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var requested *string
	if q.Has("department") {
		d := q.Get("department")
		requested = &d
	}
	department, err := h.access.ScopeDepartment(user, requested)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	page, limit := pageParams(r)
	result, err := h.rules.GetAllRules(r.Context(), page, limit, isActive, department)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(result, page, limit))
}

// ListByDepartment handles GET /api/v1/rules/department/{department}
func (h *RuleHandler) ListByDepartment(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	requested := r.PathValue("department")
	department, err := h.access.ScopeDepartment(user, &requested)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	isActive, err := parseBoolParam(r.URL.Query().Get("is_active"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	page, limit := pageParams(r)
	var result *domain.RulePage
	if department == nil {
		result, err = h.rules.GetAllRules(r.Context(), page, limit, isActive, nil)
	} else {
		result, err = h.rules.GetRulesByDepartment(r.Context(), *department, page, limit, isActive)
	}
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(result, page, limit))
}

// Get handles GET /api/v1/rules/{id}
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Update handles PUT /api/v1/rules/{id}
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.authz.RequireAdmin(user); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	rule, ok := h.load(w, r)
	if !ok {
		return
	}

	var patch service.RulePatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if patch.Department != nil && !user.IsSuperAdmin && !user.CanSeeDepartment(*patch.Department) {
		respondError(w, r, h.logger, fmt.Errorf("%w: cannot move rule out of %s", domain.ErrForbidden, user.Department))
		return
	}

	updated, err := h.rules.UpdateRule(r.Context(), rule.ID, patch, user.Username)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if !updated {
		respondError(w, r, h.logger, fmt.Errorf("rule %s: %w", rule.ID, domain.ErrNotFound))
		return
	}
	h.audit.LogRuleChange(r.Context(), user.Username, user.Department, "rule.update", rule.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rule updated", "ruleId": rule.ID})
}

// Delete handles DELETE /api/v1/rules/{id}
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.authz.RequireAdmin(user); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.rules.DeleteRule(r.Context(), rule.ID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogRuleChange(r.Context(), user.Username, user.Department, "rule.delete", rule.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rule deleted"})
}

// Toggle handles PATCH /api/v1/rules/{id}/toggle
func (h *RuleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.authz.RequireAdmin(user); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	rule, ok := h.load(w, r)
	if !ok {
		return
	}
	active, err := h.rules.ToggleRuleStatus(r.Context(), rule.ID, user.Username)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogRuleChange(r.Context(), user.Username, user.Department, "rule.toggle", rule.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ruleId": rule.ID, "is_active": active})
}

// Stats handles GET /api/v1/rules/stats/rules
func (h *RuleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.rules.GetRuleStats(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Departments handles GET /api/v1/rules/departments
func (h *RuleHandler) Departments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.rules.GetDepartments(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	user := middleware.GetUserFromContext(r.Context())
	if user != nil && !user.IsSuperAdmin {
		visible := departments[:0]
		for _, d := range departments {
			if user.CanSeeDepartment(d) {
				visible = append(visible, d)
			}
		}
		departments = visible
	}
	if departments == nil {
		departments = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"departments": departments})
}

// load fetches the {id} rule and applies the department check
func (h *RuleHandler) load(w http.ResponseWriter, r *http.Request) (*domain.RuleWithDetails, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "rule id is required")
		return nil, false
	}
	rule, err := h.rules.GetRuleByID(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return nil, false
	}
	if err := h.access.CheckRule(middleware.GetUserFromContext(r.Context()), &rule.Rule); err != nil {
		respondError(w, r, h.logger, err)
		return nil, false
	}
	return rule, true
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return service.NormalizePage(page, limit)
}

func parseBoolParam(v string) (*bool, error) {
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%w: is_active must be true or false", domain.ErrValidation)
	}
	return &b, nil
}

func pageResponse(p *domain.RulePage, page, limit int) map[string]interface{} {
	rules := p.Rules
	if rules == nil {
		rules = []domain.RuleWithDetails{}
	}
	return map[string]interface{}{
		"data":  rules,
		"total": p.Total,
		"page":  page,
		"limit": limit,
	}
}
