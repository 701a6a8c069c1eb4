package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PREFERENCES COMMAND
// Partially updates a user's matching filters. The merged result is validated
// as a whole; on any violation nothing is written.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesCommand contains the data to update preferences.
type UpdatePreferencesCommand struct {
	// UserID is the owner; preferences are only ever mutated by their owner.
	UserID string

	// Update contains the new values. nil fields are left unchanged.
	Update matching.PreferencesUpdate
}

// Validate validates the command.
func (c UpdatePreferencesCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("update_preferences: user_id is required")
	}
	return nil
}

// UpdatePreferencesResult contains the result of updating preferences.
type UpdatePreferencesResult struct {
	Preferences *matching.Preferences
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesHandler handles the UpdatePreferencesCommand.
type UpdatePreferencesHandler struct {
	prefs matching.PreferencesRepository
}

// NewUpdatePreferencesHandler creates a new UpdatePreferencesHandler.
func NewUpdatePreferencesHandler(prefs matching.PreferencesRepository) *UpdatePreferencesHandler {
	return &UpdatePreferencesHandler{prefs: prefs}
}

// Handle executes the update preferences command.
func (h *UpdatePreferencesHandler) Handle(ctx context.Context, cmd UpdatePreferencesCommand) (*UpdatePreferencesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("matching", "UpdatePreferences", shared.ErrValidation, "invalid command", err)
	}

	current, err := h.prefs.Get(ctx, cmd.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("update_preferences: load: %w", err)
		}
		current = matching.DefaultPreferences(cmd.UserID)
	}

	next := cmd.Update.ApplyTo(current, time.Now().UTC())
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := h.prefs.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("update_preferences: save: %w", err)
	}

	return &UpdatePreferencesResult{Preferences: next}, nil
}
