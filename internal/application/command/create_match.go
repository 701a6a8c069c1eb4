// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE MATCH COMMAND
// A user acted on a candidate. Retries are safe: an existing active match for
// the pair is returned instead of an error.
// ══════════════════════════════════════════════════════════════════════════════

// CreateMatchCommand contains the data to create a match.
type CreateMatchCommand struct {
	// UserID is the acting (authenticated) user.
	UserID string

	// TargetUserID is the candidate being matched.
	TargetUserID string

	// CompatibilityScore is snapshotted onto the match.
	CompatibilityScore int
}

// Validate validates the command.
func (c CreateMatchCommand) Validate() error {
	_, err := matching.NewMatch("validate", c.UserID, c.TargetUserID, c.CompatibilityScore, time.Time{})
	return err
}

// CreateMatchResult contains the result of creating a match.
type CreateMatchResult struct {
	Match *matching.Match

	// Created is false when an existing active match was returned.
	Created bool

	// Outbox holds the push deliveries to perform.
	Outbox []shared.Delivery
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateMatchHandler handles the CreateMatchCommand.
type CreateMatchHandler struct {
	matches matching.MatchRepository
	users   matching.UserDirectory
}

// NewCreateMatchHandler creates a new CreateMatchHandler.
func NewCreateMatchHandler(matches matching.MatchRepository, users matching.UserDirectory) *CreateMatchHandler {
	return &CreateMatchHandler{
		matches: matches,
		users:   users,
	}
}

// Handle executes the create match command.
func (h *CreateMatchHandler) Handle(ctx context.Context, cmd CreateMatchCommand) (*CreateMatchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_match: %w", err)
	}

	if h.users != nil {
		if _, err := h.users.GetProfile(ctx, cmd.TargetUserID); err != nil {
			if shared.IsNotFound(err) {
				return nil, shared.NewNotFoundError("matching", "CreateMatch", "target user not found")
			}
			return nil, fmt.Errorf("create_match: load target: %w", err)
		}
	}

	existing, err := h.existing(ctx, cmd.UserID, cmd.TargetUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &CreateMatchResult{Match: existing}, nil
	}

	m, err := matching.NewMatch(uuid.NewString(), cmd.UserID, cmd.TargetUserID, cmd.CompatibilityScore, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create_match: %w", err)
	}

	if err := h.matches.Create(ctx, m); err != nil {
		if !shared.IsConflict(err) {
			return nil, fmt.Errorf("create_match: save: %w", err)
		}
		// Lost the race on the pair constraint: the winner is the answer.
		winner, werr := h.existing(ctx, cmd.UserID, cmd.TargetUserID)
		if werr != nil {
			return nil, werr
		}
		if winner == nil {
			return nil, fmt.Errorf("create_match: %w", err)
		}
		return &CreateMatchResult{Match: winner}, nil
	}

	event := shared.NewMatchCreatedEvent(m.ID, m.User1ID, m.User2ID, m.CompatibilityScore, m.MatchedAt)
	return &CreateMatchResult{
		Match:   m,
		Created: true,
		Outbox: []shared.Delivery{
			shared.ToUser(m.User1ID, event),
			shared.ToUser(m.User2ID, event),
		},
	}, nil
}

// existing returns the active match of the pair, nil when there is none,
// or a conflict when the pair was archived.
func (h *CreateMatchHandler) existing(ctx context.Context, a, b string) (*matching.Match, error) {
	m, err := h.matches.FindByPair(ctx, a, b)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("create_match: find pair: %w", err)
	}
	if !m.IsActive() {
		return nil, shared.NewConflictError("matching", "CreateMatch", "match between these users was archived")
	}
	return m, nil
}
