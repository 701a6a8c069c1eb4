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
// ARCHIVE MATCH COMMAND
// Moves a match to the terminal archived state. Re-archiving is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// ArchiveMatchCommand contains the data to archive a match.
type ArchiveMatchCommand struct {
	MatchID string

	// UserID must be one of the two participants.
	UserID string
}

// Validate validates the command.
func (c ArchiveMatchCommand) Validate() error {
	if c.MatchID == "" {
		return errors.New("archive_match: match_id is required")
	}
	if c.UserID == "" {
		return errors.New("archive_match: user_id is required")
	}
	return nil
}

// ArchiveMatchResult contains the result of archiving a match.
type ArchiveMatchResult struct {
	Match *matching.Match

	// Archived is false when the match was already archived.
	Archived bool

	Outbox []shared.Delivery
}

// ArchiveMatchHandler handles the ArchiveMatchCommand.
type ArchiveMatchHandler struct {
	matches matching.MatchRepository
}

// NewArchiveMatchHandler creates a new ArchiveMatchHandler.
func NewArchiveMatchHandler(matches matching.MatchRepository) *ArchiveMatchHandler {
	return &ArchiveMatchHandler{matches: matches}
}

// Handle executes the archive match command.
func (h *ArchiveMatchHandler) Handle(ctx context.Context, cmd ArchiveMatchCommand) (*ArchiveMatchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("matching", "ArchiveMatch", shared.ErrValidation, "invalid command", err)
	}

	m, err := h.matches.GetByID(ctx, cmd.MatchID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("matching", "ArchiveMatch", "match not found")
		}
		return nil, fmt.Errorf("archive_match: load: %w", err)
	}
	if !m.HasParticipant(cmd.UserID) {
		return nil, shared.NewAuthorizationError("matching", "ArchiveMatch", shared.ReasonNotParticipant, "not a participant of this match")
	}

	now := time.Now().UTC()
	changed, err := h.matches.Archive(ctx, m.ID, now)
	if err != nil {
		return nil, fmt.Errorf("archive_match: save: %w", err)
	}

	result := &ArchiveMatchResult{Archived: changed}
	if result.Match, err = h.matches.GetByID(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("archive_match: reload: %w", err)
	}
	if changed {
		result.Outbox = []shared.Delivery{
			shared.ToMatchRoom(m.ID, shared.NewMatchArchivedEvent(m.ID, cmd.UserID)),
		}
	}
	return result, nil
}
