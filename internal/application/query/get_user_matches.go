package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER MATCHES QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetUserMatchesQuery contains the request parameters.
type GetUserMatchesQuery struct {
	UserID string

	// Page is 1-based.
	Page  int
	Limit int

	// IncludeArchived also lists archived matches.
	IncludeArchived bool
}

// Validate normalizes paging.
func (q *GetUserMatchesQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	p := shared.NewPage(q.Page, q.Limit)
	q.Page, q.Limit = p.Number, p.Limit
	return nil
}

// MatchDTO is a match seen from one participant.
type MatchDTO struct {
	*matching.Match

	// OtherUser is nil when the other participant no longer exists.
	OtherUser *matching.UserSummary `json:"otherUser"`
}

// GetUserMatchesResult is one page of matches.
type GetUserMatchesResult struct {
	Matches []MatchDTO `json:"matches"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	HasMore bool       `json:"hasMore"`
}

// GetUserMatchesHandler handles the query.
type GetUserMatchesHandler struct {
	matches matching.MatchRepository
	users   matching.UserDirectory
}

// NewGetUserMatchesHandler creates a new handler.
func NewGetUserMatchesHandler(matches matching.MatchRepository, users matching.UserDirectory) *GetUserMatchesHandler {
	return &GetUserMatchesHandler{matches: matches, users: users}
}

// Handle executes the query.
func (h *GetUserMatchesHandler) Handle(ctx context.Context, q GetUserMatchesQuery) (*GetUserMatchesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("matching", "GetUserMatches", shared.ErrValidation, "invalid query", err)
	}

	page := shared.Page{Number: q.Page, Limit: q.Limit}
	list, total, err := h.matches.ListByUser(ctx, q.UserID, matching.ListFilter{Page: page, IncludeArchived: q.IncludeArchived})
	if err != nil {
		return nil, fmt.Errorf("get_user_matches: list: %w", err)
	}

	others := make([]string, 0, len(list))
	for _, m := range list {
		others = append(others, m.OtherParticipant(q.UserID))
	}
	profiles, err := h.users.GetProfiles(ctx, others)
	if err != nil {
		return nil, fmt.Errorf("get_user_matches: profiles: %w", err)
	}

	result := &GetUserMatchesResult{
		Matches: make([]MatchDTO, 0, len(list)),
		Total:   total,
		Page:    q.Page,
		Limit:   q.Limit,
		HasMore: page.Offset()+len(list) < total,
	}
	for _, m := range list {
		dto := MatchDTO{Match: m}
		if p, ok := profiles[m.OtherParticipant(q.UserID)]; ok {
			s := p.Summary()
			dto.OtherUser = &s
		}
		result.Matches = append(result.Matches, dto)
	}
	return result, nil
}

// AreMatchedQuery asks whether two users share an active match.
type AreMatchedQuery struct {
	UserID      string
	OtherUserID string
}

// AreMatchedHandler handles the query.
type AreMatchedHandler struct {
	matches matching.MatchRepository
}

// NewAreMatchedHandler creates a new handler.
func NewAreMatchedHandler(matches matching.MatchRepository) *AreMatchedHandler {
	return &AreMatchedHandler{matches: matches}
}

// Handle returns true iff an active match exists for the pair.
func (h *AreMatchedHandler) Handle(ctx context.Context, q AreMatchedQuery) (bool, error) {
	if q.UserID == "" || q.OtherUserID == "" || q.UserID == q.OtherUserID {
		return false, nil
	}
	m, err := h.matches.FindByPair(ctx, q.UserID, q.OtherUserID)
	if err != nil {
		if shared.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("are_matched: %w", err)
	}
	return m.IsActive(), nil
}
