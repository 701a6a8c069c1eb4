package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
)

// StatsSource reads aggregate ledger numbers.
type StatsSource interface {
	Stats(ctx context.Context) (matching.LedgerStats, error)
}

// LedgerStatsJob logs the match ledger totals and keeps the latest snapshot.
type LedgerStatsJob struct {
	source StatsSource
	logger *slog.Logger

	mu   sync.RWMutex
	last *matching.LedgerStats
}

// NewLedgerStatsJob creates the job.
func NewLedgerStatsJob(source StatsSource, logger *slog.Logger) *LedgerStatsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerStatsJob{source: source, logger: logger}
}

// Name implements scheduler.Job.
func (j *LedgerStatsJob) Name() string { return "ledger_stats" }

// Run implements scheduler.Job.
func (j *LedgerStatsJob) Run(ctx context.Context) error {
	stats, err := j.source.Stats(ctx)
	if err != nil {
		return fmt.Errorf("ledger stats: %w", err)
	}

	j.mu.Lock()
	j.last = &stats
	j.mu.Unlock()

	j.logger.Info("match ledger",
		"total", stats.TotalMatches,
		"active", stats.ActiveMatches,
		"archived", stats.ArchivedMatches,
		"average_score", stats.AverageScore,
	)
	return nil
}

// Last returns the most recent snapshot, nil before the first run.
func (j *LedgerStatsJob) Last() *matching.LedgerStats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}
