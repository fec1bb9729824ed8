package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/security"
	"github.com/aryan0dhankhar/rulemaster/internal/security/audit"
	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
	"github.com/aryan0dhankhar/rulemaster/internal/service"
)

// UserHandler serves onboarding and the user directory. Admins only.
type UserHandler struct {
	users  *service.UserService
	authz  *security.AuthorizationService
	audit  *audit.Logger
	logger *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *service.UserService, authz *security.AuthorizationService, auditLog *audit.Logger, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	return &UserHandler{users: users, authz: authz, audit: auditLog, logger: logger}
}

// Onboard handles POST /api/v1/users/onboard
func (h *UserHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if err := h.authz.RequireAdmin(user); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var in domain.OnboardUser
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	res, err := h.users.Onboard(r.Context(), in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.audit.LogIdentityChange(r.Context(), user.Username, "user.onboard", "user", res.UserID)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User onboarded successfully",
		"result":  res,
	})
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.authz.RequireAdmin(middleware.GetUserFromContext(r.Context())); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	users, err := h.users.ListUsersWithRolesAndGroups(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []domain.IdentityUser{}
	}
	writeJSON(w, http.StatusOK, users)
}
