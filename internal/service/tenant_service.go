package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// TenantService manages tenant realms in the identity provider
type TenantService struct {
	realms domain.RealmAdmin
	logger *slog.Logger
}

func NewTenantService(realms domain.RealmAdmin, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{realms: realms, logger: logger}
}

func (s *TenantService) CreateTenant(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: realmName is required", domain.ErrValidation)
	}
	if err := s.realms.CreateRealm(ctx, name); err != nil {
		return fmt.Errorf("failed to create tenant %q: %w", name, err)
	}
	s.logger.Info("tenant created", slog.String("realm", name))
	return nil
}

// ListTenants returns realm names
func (s *TenantService) ListTenants(ctx context.Context) ([]string, error) {
	realms, err := s.realms.ListRealms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	names := make([]string, 0, len(realms))
	for _, r := range realms {
		names = append(names, r.Realm)
	}
	return names, nil
}

// UpdateTenant renames realm. An empty newName leaves the realm as it is.
func (s *TenantService) UpdateTenant(ctx context.Context, realm, newName string) error {
	if _, err := s.realms.GetRealm(ctx, realm); err != nil {
		return fmt.Errorf("tenant %q: %w", realm, err)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" || newName == realm {
		return nil
	}
	if err := s.realms.RenameRealm(ctx, realm, newName); err != nil {
		return fmt.Errorf("failed to rename tenant %q: %w", realm, err)
	}
	s.logger.Info("tenant renamed", slog.String("realm", realm), slog.String("new_realm", newName))
	return nil
}

func (s *TenantService) DeleteTenant(ctx context.Context, realm string) error {
	if _, err := s.realms.GetRealm(ctx, realm); err != nil {
		return fmt.Errorf("tenant %q: %w", realm, err)
	}
	if err := s.realms.DeleteRealm(ctx, realm); err != nil {
		return fmt.Errorf("failed to delete tenant %q: %w", realm, err)
	}
	s.logger.Info("tenant deleted", slog.String("realm", realm))
	return nil
}
