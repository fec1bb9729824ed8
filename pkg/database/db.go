package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConnectionPool manages database connections
type ConnectionPool struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// DSN renders the lib/pq keyword/value connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}

// NewConnectionPool opens and pings a Postgres pool
func NewConnectionPool(ctx context.Context, config *Config, logger *slog.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(25)
	}

	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}

	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctxTest, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctxTest); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected successfully",
		slog.String("host", config.Host),
		slog.String("database", config.Database),
	)

	return &ConnectionPool{
		db:     db,
		logger: logger,
	}, nil
}

// GetDB returns the underlying sqlx.DB
func (cp *ConnectionPool) GetDB() *sqlx.DB {
	return cp.db
}

// Close closes the database connection
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Health checks the database health
func (cp *ConnectionPool) Health(ctx context.Context) error {
	ctxTest, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return cp.db.PingContext(ctxTest)
}

// Migrate applies the rule schema inside one transaction. Statements are idempotent.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	tx, err := cp.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	cp.logger.Info("database schema up to date", slog.Int("statements", len(schemaStatements)))
	return nil
}

// DefaultConfig returns default database configuration for development
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "rulemaster",
		Password:        "dev",
		Database:        "rulemaster",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}
