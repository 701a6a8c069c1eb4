package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC FITNESS COMMAND
// Pulls a user's activity history from the fitness provider and rebuilds the
// metrics snapshot from scratch.
// ══════════════════════════════════════════════════════════════════════════════

// FeatureGate answers per-user feature flag checks.
type FeatureGate interface {
	IsEnabledFor(feature, userID string) bool
}

// FeatureRegistrationGate is the flag that makes the fitness threshold binding.
const FeatureRegistrationGate = "fitness.registration_gate"

// SyncFitnessCommand contains the data needed to sync a user.
type SyncFitnessCommand struct {
	UserID string
}

// Validate validates the command.
func (c SyncFitnessCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("sync_fitness: user_id is required")
	}
	return nil
}

// SyncFitnessResult contains the rebuilt snapshot.
type SyncFitnessResult struct {
	Metrics fitness.Metrics

	// ActivitiesFetched is how many records the provider returned.
	ActivitiesFetched int

	// Eligible reports whether the snapshot meets the registration threshold.
	Eligible bool

	// GateEnforced is true when the registration gate applies to this user.
	GateEnforced bool

	Outbox []shared.Delivery
}

// SyncFitnessHandler handles the SyncFitnessCommand.
type SyncFitnessHandler struct {
	source     fitness.ActivitySource
	repo       fitness.Repository
	threshold  fitness.Threshold
	windowDays int
	features   FeatureGate
}

// NewSyncFitnessHandler creates a new SyncFitnessHandler. features may be nil.
func NewSyncFitnessHandler(
	source fitness.ActivitySource,
	repo fitness.Repository,
	threshold fitness.Threshold,
	windowDays int,
	features FeatureGate,
) *SyncFitnessHandler {
	if windowDays <= 0 {
		windowDays = fitness.DefaultWindowDays
	}
	return &SyncFitnessHandler{
		source:     source,
		repo:       repo,
		threshold:  threshold,
		windowDays: windowDays,
		features:   features,
	}
}

// Handle executes the sync fitness command.
func (h *SyncFitnessHandler) Handle(ctx context.Context, cmd SyncFitnessCommand) (*SyncFitnessResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("fitness", "SyncFitness", shared.ErrValidation, "invalid command", err)
	}

	// Zero since asks for the full history so TotalDistance stays lifetime.
	activities, err := h.source.FetchActivities(ctx, cmd.UserID, time.Time{})
	if err != nil {
		return nil, shared.WrapError("fitness", "SyncFitness", shared.ErrExternalService, "fetch activities", err)
	}

	now := time.Now().UTC()
	metrics := fitness.Compute(activities, now, h.windowDays)
	if err := h.repo.Save(ctx, cmd.UserID, metrics); err != nil {
		return nil, fmt.Errorf("sync_fitness: save: %w", err)
	}

	eligible := h.threshold.Eligible(&metrics)
	return &SyncFitnessResult{
		Metrics:           metrics,
		ActivitiesFetched: len(activities),
		Eligible:          eligible,
		GateEnforced:      h.features != nil && h.features.IsEnabledFor(FeatureRegistrationGate, cmd.UserID),
		Outbox: []shared.Delivery{
			shared.ToUser(cmd.UserID, shared.NewFitnessRecomputedEvent(cmd.UserID, metrics.WeeklyDistance, metrics.WeeklyActivities, eligible)),
		},
	}, nil
}
