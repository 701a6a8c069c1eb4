package fitness

import (
	"context"
	"time"
)

// Repository persists metrics snapshots.
// This interface is implemented by the infrastructure layer.
type Repository interface {
	// Save replaces the snapshot of userID.
	Save(ctx context.Context, userID string, m Metrics) error

	// Get returns the snapshot of userID or shared.ErrNotFound.
	Get(ctx context.Context, userID string) (*Metrics, error)
}

// ActivitySource fetches raw activity records from the fitness provider.
type ActivitySource interface {
	// FetchActivities returns every activity of userID started after since.
	FetchActivities(ctx context.Context, userID string, since time.Time) ([]Activity, error)
}
