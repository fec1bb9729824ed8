package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/rulemaster/internal/security"
	"github.com/aryan0dhankhar/rulemaster/internal/security/audit"
	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
	"github.com/aryan0dhankhar/rulemaster/internal/service"
)

// TenantHandler manages identity-provider realms. Every route requires a super-admin.
type TenantHandler struct {
	tenants *service.TenantService
	authz   *security.AuthorizationService
	audit   *audit.Logger
	logger  *slog.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants *service.TenantService, authz *security.AuthorizationService, auditLog *audit.Logger, logger *slog.Logger) *TenantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &TenantHandler{tenants: tenants, authz: authz, audit: auditLog, logger: logger}
}

type createTenantRequest struct {
	RealmName string `json:"realmName"`
}

type updateTenantRequest struct {
	NewRealmName string `json:"newRealmName"`
}

func (h *TenantHandler) allowed(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.authz.RequireSuperAdmin(user); err != nil {
		respondError(w, r, h.logger, err)
		return "", false
	}
	return user.Username, true
}

// Create handles POST /api/v1/tenants
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.allowed(w, r)
	if !ok {
		return
	}
	var req createTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.tenants.CreateTenant(r.Context(), req.RealmName); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogIdentityChange(r.Context(), actor, "tenant.create", "realm", req.RealmName)
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("Tenant '%s' created successfully.", req.RealmName),
	})
}

// List handles GET /api/v1/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.allowed(w, r); !ok {
		return
	}
	names, err := h.tenants.ListTenants(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tenants": names})
}

// Update handles PATCH /api/v1/tenants/{realm}
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.allowed(w, r)
	if !ok {
		return
	}
	realm := r.PathValue("realm")
	var req updateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.tenants.UpdateTenant(r.Context(), realm, req.NewRealmName); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogIdentityChange(r.Context(), actor, "tenant.update", "realm", realm)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Tenant '%s' updated successfully.", realm),
	})
}

// Delete handles DELETE /api/v1/tenants/{realm}
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.allowed(w, r)
	if !ok {
		return
	}
	realm := r.PathValue("realm")
	if err := h.tenants.DeleteTenant(r.Context(), realm); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogIdentityChange(r.Context(), actor, "tenant.delete", "realm", realm)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Tenant '%s' deleted successfully.", realm),
	})
}
