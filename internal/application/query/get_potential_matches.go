// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET POTENTIAL MATCHES QUERY
// The candidate filter: nearby users, minus self and anyone already matched,
// filtered by the requester's preferences, scored and ranked.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultCandidatePoolCeiling caps how many nearby users are scored per request.
const DefaultCandidatePoolCeiling = 2000

// GetPotentialMatchesQuery contains the request parameters.
type GetPotentialMatchesQuery struct {
	UserID string

	// Limit is clamped to [1, 100]; zero means the default page size.
	Limit int

	// Offset into the ranked list; negative is treated as zero.
	Offset int
}

// Validate normalizes paging and checks required fields.
func (q *GetPotentialMatchesQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	q.Limit = shared.LimitOrDefault(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}

// CandidateDTO is one ranked candidate.
type CandidateDTO struct {
	User                 matching.UserSummary `json:"user"`
	CompatibilityScore   int                  `json:"compatibilityScore"`
	CompatibilityFactors matching.Factors     `json:"compatibilityFactors"`
	FitnessStats         *fitness.Metrics     `json:"fitnessStats"`
	DistanceKm           float64              `json:"distanceKm"`
}

// GetPotentialMatchesResult is one page of ranked candidates.
type GetPotentialMatchesResult struct {
	Candidates []CandidateDTO `json:"candidates"`

	// Total is the number of candidates that passed every filter.
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// GetPotentialMatchesHandler handles the query.
type GetPotentialMatchesHandler struct {
	users       matching.UserDirectory
	prefs       matching.PreferencesRepository
	matches     matching.MatchRepository
	scorer      *matching.Scorer
	poolCeiling int
}

// NewGetPotentialMatchesHandler creates a new handler.
// A non-positive poolCeiling selects DefaultCandidatePoolCeiling.
func NewGetPotentialMatchesHandler(
	users matching.UserDirectory,
	prefs matching.PreferencesRepository,
	matches matching.MatchRepository,
	scorer *matching.Scorer,
	poolCeiling int,
) *GetPotentialMatchesHandler {
	if poolCeiling <= 0 {
		poolCeiling = DefaultCandidatePoolCeiling
	}
	if scorer == nil {
		scorer = matching.NewScorer()
	}
	return &GetPotentialMatchesHandler{
		users:       users,
		prefs:       prefs,
		matches:     matches,
		scorer:      scorer,
		poolCeiling: poolCeiling,
	}
}

type scoredCandidate struct {
	profile matching.Profile
	score   matching.CompatibilityScore
	dist    float64
}

// Handle executes the query.
func (h *GetPotentialMatchesHandler) Handle(ctx context.Context, q GetPotentialMatchesQuery) (*GetPotentialMatchesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("matching", "GetPotentialMatches", shared.ErrValidation, "invalid query", err)
	}

	requester, err := h.users.GetProfile(ctx, q.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("matching", "GetPotentialMatches", "user not found")
		}
		return nil, fmt.Errorf("get_potential_matches: load requester: %w", err)
	}
	if !requester.HasLocation() {
		return nil, shared.NewValidationError("matching", "GetPotentialMatches", "location", "requester has no coordinates")
	}

	prefs, err := loadPreferences(ctx, h.prefs, q.UserID)
	if err != nil {
		return nil, err
	}

	matched, err := h.matches.MatchedUserIDs(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_potential_matches: matched users: %w", err)
	}
	exclude := append([]string{q.UserID}, matched...)
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	// The pool ceiling applies to users that can still be proposed.
	pool, err := h.users.FindWithinRadius(ctx, *requester.Location, float64(prefs.MaxDistanceKm), exclude, h.poolCeiling)
	if err != nil {
		return nil, fmt.Errorf("get_potential_matches: geo query: %w", err)
	}

	ranked := make([]scoredCandidate, 0, len(pool))
	for _, c := range pool {
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		if !prefs.AllowsAge(c.Age) || !prefs.AllowsActivities(c.Favorites()) {
			continue
		}
		score := h.scorer.Score(*requester, c.Profile, prefs.MaxDistanceKm)
		if score.Score < prefs.MinCompatibilityScore {
			continue
		}
		ranked = append(ranked, scoredCandidate{profile: c.Profile, score: score, dist: c.DistanceKm})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score.Score != ranked[j].score.Score {
			return ranked[i].score.Score > ranked[j].score.Score
		}
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].profile.ID < ranked[j].profile.ID
	})

	result := &GetPotentialMatchesResult{
		Candidates: []CandidateDTO{},
		Total:      len(ranked),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Offset >= len(ranked) {
		return result, nil
	}
	end := q.Offset + q.Limit
	if end > len(ranked) {
		end = len(ranked)
	}
	for _, c := range ranked[q.Offset:end] {
		result.Candidates = append(result.Candidates, CandidateDTO{
			User:                 c.profile.Summary(),
			CompatibilityScore:   c.score.Score,
			CompatibilityFactors: c.score.Factors,
			FitnessStats:         c.profile.Metrics,
			DistanceKm:           c.dist,
		})
	}
	return result, nil
}

// loadPreferences returns stored preferences or the unsaved defaults.
func loadPreferences(ctx context.Context, repo matching.PreferencesRepository, userID string) (*matching.Preferences, error) {
	p, err := repo.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if shared.IsNotFound(err) {
		return matching.DefaultPreferences(userID), nil
	}
	return nil, fmt.Errorf("load preferences: %w", err)
}
