package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/rulemaster/internal/observability/requestid"
)

type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit"))}
}

func (al *Logger) LogAction(ctx context.Context, username, department, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("username", username),
		slog.String("department", department),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestid.From(ctx)),
		slog.Time("timestamp", time.Now()),
	)
}

// LogRuleChange records a completed rule mutation
func (al *Logger) LogRuleChange(ctx context.Context, username, department, action, ruleID string) {
	al.LogAction(ctx, username, department, action, "rule", ruleID, "success", "")
}

// LogIdentityChange records a completed tenant or user administration call
func (al *Logger) LogIdentityChange(ctx context.Context, username, action, resource, resourceID string) {
	al.LogAction(ctx, username, "", action, resource, resourceID, "success", "")
}

func (al *Logger) LogDenied(ctx context.Context, username, department, reason string) {
	al.LogAction(ctx, username, department, "access_denied", "api", "", "denied", reason)
}
