package query

import (
	"context"
	"fmt"
	"math"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// AdminPolicy is the explicit set of principals allowed to see admin data.
type AdminPolicy struct {
	adminIDs map[string]struct{}
}

// NewAdminPolicy creates a policy from user ids.
func NewAdminPolicy(ids []string) AdminPolicy {
	p := AdminPolicy{adminIDs: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			p.adminIDs[id] = struct{}{}
		}
	}
	return p
}

// IsAdmin reports whether userID is an administrator.
func (p AdminPolicy) IsAdmin(userID string) bool {
	_, ok := p.adminIDs[userID]
	return ok
}

// GetMatchStatsQuery asks for platform-wide statistics.
type GetMatchStatsQuery struct {
	RequesterID string
}

// MatchStatsDTO is computed from stored entities only.
type MatchStatsDTO struct {
	TotalUsers                int     `json:"totalUsers"`
	TotalMatches              int     `json:"totalMatches"`
	ActiveMatches             int     `json:"activeMatches"`
	ArchivedMatches           int     `json:"archivedMatches"`
	AverageCompatibilityScore float64 `json:"avgCompatibilityScore"`
	ArchiveRate               float64 `json:"archiveRate"`
	TotalMessages             int     `json:"totalMessages"`
	AverageMessagesPerMatch   float64 `json:"avgMessagesPerMatch"`
}

// GetMatchStatsHandler handles the query.
type GetMatchStatsHandler struct {
	policy   AdminPolicy
	matches  matching.MatchRepository
	messages conversation.Repository
	users    matching.UserDirectory
}

// NewGetMatchStatsHandler creates a new handler.
func NewGetMatchStatsHandler(policy AdminPolicy, matches matching.MatchRepository, messages conversation.Repository, users matching.UserDirectory) *GetMatchStatsHandler {
	return &GetMatchStatsHandler{policy: policy, matches: matches, messages: messages, users: users}
}

// Handle executes the query.
func (h *GetMatchStatsHandler) Handle(ctx context.Context, q GetMatchStatsQuery) (*MatchStatsDTO, error) {
	if !h.policy.IsAdmin(q.RequesterID) {
		return nil, shared.NewAuthorizationError("admin", "GetMatchStats", shared.ReasonNotAdmin, "admin access required")
	}

	ledger, err := h.matches.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_match_stats: ledger: %w", err)
	}
	messages, err := h.messages.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_match_stats: messages: %w", err)
	}
	users, err := h.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_match_stats: users: %w", err)
	}

	dto := &MatchStatsDTO{
		TotalUsers:                users,
		TotalMatches:              ledger.TotalMatches,
		ActiveMatches:             ledger.ActiveMatches,
		ArchivedMatches:           ledger.ArchivedMatches,
		AverageCompatibilityScore: round2(ledger.AverageScore),
		TotalMessages:             messages,
	}
	if ledger.TotalMatches > 0 {
		dto.ArchiveRate = round2(float64(ledger.ArchivedMatches) / float64(ledger.TotalMatches))
		dto.AverageMessagesPerMatch = round2(float64(messages) / float64(ledger.TotalMatches))
	}
	return dto, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
