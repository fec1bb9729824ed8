package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

type memRealms struct {
	realms  map[string]bool
	renamed int
}

func (m *memRealms) CreateRealm(_ context.Context, name string) error {
	if m.realms[name] {
		return domain.ErrConflict
	}
	m.realms[name] = true
	return nil
}

func (m *memRealms) ListRealms(context.Context) ([]domain.Realm, error) {
	var out []domain.Realm
	for name := range m.realms {
		out = append(out, domain.Realm{Realm: name, Enabled: true})
	}
	return out, nil
}

func (m *memRealms) GetRealm(_ context.Context, name string) (*domain.Realm, error) {
	if !m.realms[name] {
		return nil, domain.ErrNotFound
	}
	return &domain.Realm{Realm: name, Enabled: true}, nil
}

func (m *memRealms) RenameRealm(_ context.Context, name, newName string) error {
	delete(m.realms, name)
	m.realms[newName] = true
	m.renamed++
	return nil
}

func (m *memRealms) DeleteRealm(_ context.Context, name string) error {
	delete(m.realms, name)
	return nil
}

func TestTenantLifecycle(t *testing.T) {
	realms := &memRealms{realms: map[string]bool{}}
	s := NewTenantService(realms, nil)
	ctx := context.Background()

	if err := s.CreateTenant(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateTenant(ctx, "acme"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := s.CreateTenant(ctx, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := s.UpdateTenant(ctx, "acme", ""); err != nil || realms.renamed != 0 {
		t.Fatalf("empty rename should be a no-op: %v", err)
	}
	if err := s.UpdateTenant(ctx, "acme", "acme-corp"); err != nil {
		t.Fatal(err)
	}
	names, _ := s.ListTenants(ctx)
	if len(names) != 1 || names[0] != "acme-corp" {
		t.Fatalf("tenants = %v", names)
	}

	if err := s.UpdateTenant(ctx, "acme", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.DeleteTenant(ctx, "acme"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.DeleteTenant(ctx, "acme-corp"); err != nil {
		t.Fatal(err)
	}
}
