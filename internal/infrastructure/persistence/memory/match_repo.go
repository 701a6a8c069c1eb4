package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// MatchRepository implements matching.MatchRepository.
type MatchRepository struct {
	s *Store
}

// Create implements matching.MatchRepository.
func (r *MatchRepository) Create(_ context.Context, m *matching.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := m.Pair().Key()
	if _, exists := r.s.pairs[key]; exists {
		return shared.NewConflictError("memory", "CreateMatch", "match already exists for this pair")
	}
	if _, exists := r.s.matches[m.ID]; exists {
		return shared.NewConflictError("memory", "CreateMatch", "match id already used")
	}
	r.s.matches[m.ID] = copyMatch(*m)
	r.s.pairs[key] = m.ID
	return nil
}

// GetByID implements matching.MatchRepository.
func (r *MatchRepository) GetByID(_ context.Context, id string) (*matching.Match, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.matches[id]
	if !ok {
		return nil, shared.NewNotFoundError("memory", "GetMatch", "match not found")
	}
	out := copyMatch(m)
	return &out, nil
}

// FindByPair implements matching.MatchRepository.
func (r *MatchRepository) FindByPair(_ context.Context, userA, userB string) (*matching.Match, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.pairs[matching.NormalizePair(userA, userB).Key()]
	if !ok {
		return nil, shared.NewNotFoundError("memory", "FindMatchByPair", "match not found")
	}
	out := copyMatch(r.s.matches[id])
	return &out, nil
}

// Archive implements matching.MatchRepository.
func (r *MatchRepository) Archive(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.matches[id]
	if !ok {
		return false, shared.NewNotFoundError("memory", "ArchiveMatch", "match not found")
	}
	changed := m.Archive(at)
	r.s.matches[id] = m
	return changed, nil
}

// ListByUser implements matching.MatchRepository.
func (r *MatchRepository) ListByUser(_ context.Context, userID string, filter matching.ListFilter) ([]*matching.Match, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.s.userMatchesLocked(userID, !filter.IncludeArchived)
	total := len(all)

	start := filter.Page.Offset()
	if start >= total {
		return []*matching.Match{}, total, nil
	}
	end := start + filter.Page.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// ListActiveByUser implements matching.MatchRepository.
func (r *MatchRepository) ListActiveByUser(_ context.Context, userID string) ([]*matching.Match, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.userMatchesLocked(userID, true), nil
}

// MatchedUserIDs implements matching.MatchRepository.
func (r *MatchRepository) MatchedUserIDs(_ context.Context, userID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ids []string
	for _, m := range r.s.userMatchesLocked(userID, false) {
		ids = append(ids, m.OtherParticipant(userID))
	}
	return ids, nil
}

// Stats implements matching.MatchRepository.
func (r *MatchRepository) Stats(_ context.Context) (matching.LedgerStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var st matching.LedgerStats
	var scoreSum int
	for _, m := range r.s.matches {
		st.TotalMatches++
		scoreSum += m.CompatibilityScore
		if m.IsActive() {
			st.ActiveMatches++
		} else {
			st.ArchivedMatches++
		}
	}
	if st.TotalMatches > 0 {
		st.AverageScore = float64(scoreSum) / float64(st.TotalMatches)
	}
	return st, nil
}

// userMatchesLocked returns copies of the user's matches, newest first.
func (s *Store) userMatchesLocked(userID string, activeOnly bool) []*matching.Match {
	var out []*matching.Match
	for _, m := range s.matches {
		if !m.HasParticipant(userID) {
			continue
		}
		if activeOnly && !m.IsActive() {
			continue
		}
		c := copyMatch(m)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MatchedAt.Equal(out[j].MatchedAt) {
			return out[i].MatchedAt.After(out[j].MatchedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func copyMatch(m matching.Match) matching.Match {
	out := m
	if m.ArchivedAt != nil {
		at := *m.ArchivedAt
		out.ArchivedAt = &at
	}
	return out
}

// PreferencesRepository implements matching.PreferencesRepository.
type PreferencesRepository struct {
	s *Store
}

// Get implements matching.PreferencesRepository.
func (r *PreferencesRepository) Get(_ context.Context, userID string) (*matching.Preferences, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.prefs[userID]
	if !ok {
		return nil, shared.NewNotFoundError("memory", "GetPreferences", "preferences not found")
	}
	p.PreferredActivities = append([]string{}, p.PreferredActivities...)
	return &p, nil
}

// Save implements matching.PreferencesRepository.
func (r *PreferencesRepository) Save(_ context.Context, p *matching.Preferences) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *p
	c.PreferredActivities = append([]string{}, p.PreferredActivities...)
	r.s.prefs[p.UserID] = c
	return nil
}
