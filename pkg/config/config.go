package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aryan0dhankhar/rulemaster/pkg/database"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	CORSAllowedOrigins []string

	Keycloak KeycloakConfig
	Oracle   OracleConfig

	StorageDriver string
	Database      database.Config

	RedisURL               string
	RateLimitPerMinute     int
	LoginAttemptsPerMinute int

	AuthzStrategy   string
	AdminRoleSuffix string
	SuperAdminRole  string
	SuperAdminGroup string

	StatsIntervalMinutes int
}

// KeycloakConfig locates the identity provider and the admin client
type KeycloakConfig struct {
	URL          string
	Realm        string
	TokenRealm   string
	ClientID     string
	ClientSecret string
}

// Issuer is the token issuer of the application realm
func (k KeycloakConfig) Issuer() string {
	return strings.TrimRight(k.URL, "/") + "/realms/" + k.Realm
}

// OracleConfig configures the OpenAI-compatible completion endpoint
type OracleConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	HTTPTimeout time.Duration
}

// Load reads configuration from environment variables, after an optional .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	port, err := getInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	dbPort, err := getInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getInt("RATE_LIMIT_PER_MINUTE", 100)
	if err != nil {
		return nil, err
	}
	loginAttempts, err := getInt("LOGIN_ATTEMPTS_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	statsInterval, err := getInt("STATS_INTERVAL_MINUTES", 1)
	if err != nil {
		return nil, err
	}
	oracleTimeout, err := time.ParseDuration(getEnv("ORACLE_HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_HTTP_TIMEOUT: %w", err)
	}

	storage := strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres))
	if storage != StoragePostgres && storage != StorageMemory {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q", storage)
	}

	db := database.DefaultConfig()
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = dbPort
	db.User = getEnv("DB_USER", db.User)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.Database = getEnv("DB_NAME", db.Database)
	db.SSLMode = getEnv("DB_SSLMODE", db.SSLMode)

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: parseCSVEnv("ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		Keycloak: KeycloakConfig{
			URL:          getEnv("KEYCLOAK_URL", "http://localhost:8081"),
			Realm:        getEnv("KEYCLOAK_REALM", "rulemaster"),
			TokenRealm:   getEnv("KEYCLOAK_TOKEN_REALM", "master"),
			ClientID:     getEnv("KEYCLOAK_CLIENT_ID", "rulemaster-backend"),
			ClientSecret: os.Getenv("KEYCLOAK_CLIENT_SECRET"),
		},
		Oracle: OracleConfig{
			APIKey:      os.Getenv("ORACLE_API_KEY"),
			BaseURL:     os.Getenv("ORACLE_BASE_URL"),
			Model:       os.Getenv("ORACLE_MODEL"),
			HTTPTimeout: oracleTimeout,
		},
		StorageDriver:          storage,
		Database:               *db,
		RedisURL:               os.Getenv("REDIS_URL"),
		RateLimitPerMinute:     rateLimit,
		LoginAttemptsPerMinute: loginAttempts,
		AuthzStrategy:          getEnv("AUTHZ_STRATEGY", "role_suffix"),
		AdminRoleSuffix:        getEnv("ADMIN_ROLE_SUFFIX", "_admin_role"),
		SuperAdminRole:         getEnv("SUPER_ADMIN_ROLE", "super_admin_role"),
		SuperAdminGroup:        getEnv("SUPER_ADMIN_GROUP", "super_admin"),
		StatsIntervalMinutes:   statsInterval,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
