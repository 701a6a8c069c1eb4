package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// UserRepository implements matching.UserDirectory.
type UserRepository struct {
	s *Store
}

// Upsert stores p without its metrics; metrics live in the fitness view.
func (r *UserRepository) Upsert(_ context.Context, p matching.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p.Location != nil {
		loc := *p.Location
		p.Location = &loc
	}
	if p.Metrics != nil {
		r.s.fitness[p.ID] = copyMetrics(*p.Metrics)
		p.Metrics = nil
	}
	r.s.users[p.ID] = p
	return nil
}

// TouchLastActive updates the user's last activity time.
func (r *UserRepository) TouchLastActive(_ context.Context, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.users[userID]
	if !ok {
		return shared.NewNotFoundError("memory", "TouchLastActive", "user not found")
	}
	p.LastActive = at
	r.s.users[userID] = p
	return nil
}

// GetProfile implements matching.UserDirectory.
func (r *UserRepository) GetProfile(_ context.Context, userID string) (*matching.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.users[userID]
	if !ok {
		return nil, shared.NewNotFoundError("memory", "GetProfile", "user not found")
	}
	return r.s.profileLocked(p), nil
}

// GetProfiles implements matching.UserDirectory.
func (r *UserRepository) GetProfiles(_ context.Context, ids []string) (map[string]*matching.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]*matching.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.s.users[id]; ok {
			out[id] = r.s.profileLocked(p)
		}
	}
	return out, nil
}

// FindWithinRadius implements matching.UserDirectory.
func (r *UserRepository) FindWithinRadius(_ context.Context, center shared.GeoPoint, radiusKm float64, exclude []string, limit int) ([]matching.NearbyProfile, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var hits []matching.NearbyProfile
	for id, p := range r.s.users {
		if _, ok := skip[id]; ok || p.Location == nil {
			continue
		}
		d := center.DistanceKm(*p.Location)
		if d > radiusKm {
			continue
		}
		hits = append(hits, matching.NearbyProfile{Profile: *r.s.profileLocked(p), DistanceKm: d})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CountUsers implements matching.UserDirectory.
func (r *UserRepository) CountUsers(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

// profileLocked returns a detached copy of p with its metrics attached.
func (s *Store) profileLocked(p matching.Profile) *matching.Profile {
	out := p
	if p.Location != nil {
		loc := *p.Location
		out.Location = &loc
	}
	if m, ok := s.fitness[p.ID]; ok {
		mc := copyMetrics(m)
		out.Metrics = &mc
	}
	return &out
}

func copyMetrics(m fitness.Metrics) fitness.Metrics {
	out := m
	out.FavoriteActivities = append([]string(nil), m.FavoriteActivities...)
	if m.AveragePace != nil {
		p := *m.AveragePace
		out.AveragePace = &p
	}
	return out
}

// FitnessRepository implements fitness.Repository.
type FitnessRepository struct {
	s *Store
}

// Save implements fitness.Repository.
func (r *FitnessRepository) Save(_ context.Context, userID string, m fitness.Metrics) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.fitness[userID] = copyMetrics(m)
	return nil
}

// Get implements fitness.Repository.
func (r *FitnessRepository) Get(_ context.Context, userID string) (*fitness.Metrics, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.fitness[userID]
	if !ok {
		return nil, shared.NewNotFoundError("memory", "GetFitness", "fitness snapshot not found")
	}
	out := copyMetrics(m)
	return &out, nil
}
