// Package jobs holds the periodic jobs registered by cmd/api.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
)

// StaleCleaner removes presence entries that outlived their TTL.
// redis.PresenceTracker satisfies it.
type StaleCleaner interface {
	CleanupStale(ctx context.Context) (int64, error)
}

// PresenceCleanupJob trims the online index so that disconnected users who
// never sent a close frame stop counting as online.
type PresenceCleanupJob struct {
	presence StaleCleaner
	logger   *slog.Logger
}

// NewPresenceCleanupJob creates the job.
func NewPresenceCleanupJob(presence StaleCleaner, logger *slog.Logger) *PresenceCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceCleanupJob{presence: presence, logger: logger}
}

// Name implements scheduler.Job.
func (j *PresenceCleanupJob) Name() string { return "presence_cleanup" }

// Run implements scheduler.Job.
func (j *PresenceCleanupJob) Run(ctx context.Context) error {
	removed, err := j.presence.CleanupStale(ctx)
	if err != nil {
		return fmt.Errorf("presence cleanup: %w", err)
	}
	if removed > 0 {
		j.logger.Info("stale presence removed", "count", removed)
	}
	return nil
}
