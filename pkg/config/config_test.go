package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"SERVER_PORT", "STORAGE_DRIVER", "KEYCLOAK_URL", "KEYCLOAK_REALM", "ORACLE_HTTP_TIMEOUT", "ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != 8080 || cfg.StorageDriver != StoragePostgres {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Oracle.HTTPTimeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.Oracle.HTTPTimeout)
	}
	if got := cfg.Keycloak.Issuer(); got != "http://localhost:8081/realms/rulemaster" {
		t.Fatalf("issuer = %q", got)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadDotEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_NAME=fromfile\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides a variable that is already set, even to ""
	t.Setenv("DB_NAME", "")
	os.Unsetenv("DB_NAME")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Database != "fromfile" {
		t.Fatalf("db name = %q", cfg.Database.Database)
	}
	if cfg.StorageDriver != StorageMemory {
		t.Fatalf("storage = %q", cfg.StorageDriver)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "eighty")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad port")
	}

	t.Setenv("SERVER_PORT", "")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
