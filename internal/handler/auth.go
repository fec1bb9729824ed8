package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/rulemaster/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LogoutRequest carries the refresh token of the session to end
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode login request")
		respondError(w, r, h.logger, err)
		return
	}

	tokens, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}
