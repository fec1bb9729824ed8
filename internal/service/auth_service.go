package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// AuthService handles end-user login and logout against the identity provider
type AuthService struct {
	sessions domain.SessionProvider
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(sessions domain.SessionProvider, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{sessions: sessions, logger: logger}
}

// Login exchanges credentials for a token set
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.TokenSet, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	tokens, err := s.sessions.PasswordGrant(ctx, username, password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			s.logger.Info("login failed", slog.String("username", username))
			return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
		}
		s.logger.Error("login error", slog.String("username", username), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	s.logger.Info("user logged in", slog.String("username", username))
	return tokens, nil
}

// Logout revokes the session behind refreshToken
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return fmt.Errorf("%w: refresh_token is required", domain.ErrValidation)
	}
	if err := s.sessions.Logout(ctx, refreshToken); err != nil {
		s.logger.Error("logout failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}
