package query

import (
	"context"
	"errors"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// GetPreferencesQuery asks for one user's preferences.
type GetPreferencesQuery struct {
	UserID string
}

// GetPreferencesResult carries stored or default preferences.
type GetPreferencesResult struct {
	Preferences *matching.Preferences

	// IsDefault is true when nothing is stored yet. Defaults are persisted
	// only by the first explicit update.
	IsDefault bool
}

// GetPreferencesHandler handles the query.
type GetPreferencesHandler struct {
	prefs matching.PreferencesRepository
}

// NewGetPreferencesHandler creates a new handler.
func NewGetPreferencesHandler(prefs matching.PreferencesRepository) *GetPreferencesHandler {
	return &GetPreferencesHandler{prefs: prefs}
}

// Handle executes the query.
func (h *GetPreferencesHandler) Handle(ctx context.Context, q GetPreferencesQuery) (*GetPreferencesResult, error) {
	if q.UserID == "" {
		return nil, shared.WrapError("matching", "GetPreferences", shared.ErrValidation, "invalid query", errors.New("user_id is required"))
	}

	p, err := h.prefs.Get(ctx, q.UserID)
	if err == nil {
		return &GetPreferencesResult{Preferences: p}, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}
	return &GetPreferencesResult{Preferences: matching.DefaultPreferences(q.UserID), IsDefault: true}, nil
}
