package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/metrics"
)

// StatsSource is the slice of the rule service the worker reads
type StatsSource interface {
	GetRuleStats(ctx context.Context) (*domain.RuleStats, error)
}

// StatsWorker periodically refreshes the rule gauges from storage
type StatsWorker struct {
	source   StatsSource
	logger   *slog.Logger
	interval time.Duration
}

// NewStatsWorker creates a new stats worker
func NewStatsWorker(source StatsSource, logger *slog.Logger, interval time.Duration) *StatsWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatsWorker{source: source, logger: logger, interval: interval}
}

// Start runs the refresh loop until ctx is cancelled. The gauges are
// populated once immediately so /metrics is useful right after boot.
func (w *StatsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("stats worker started", slog.Duration("interval", w.interval))
	w.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stats worker stopped")
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

// Refresh reads the current counts and publishes them
func (w *StatsWorker) Refresh(ctx context.Context) {
	stats, err := w.source.GetRuleStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("failed to read rule stats", slog.String("error", err.Error()))
		}
		return
	}
	metrics.SetRuleCounts(stats.ActiveRules, stats.InactiveRules, stats.TotalDepartments)
	w.logger.Debug("rule stats refreshed",
		slog.Int("total", stats.TotalRules),
		slog.Int("active", stats.ActiveRules),
		slog.Int("departments", stats.TotalDepartments),
	)
}
