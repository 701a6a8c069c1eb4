// Package matching contains the compatibility scorer, per-user matching
// preferences and the match ledger model.
package matching

import (
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// Profile is the read-only view of a user that matching needs.
// Users are owned outside this core; only LastActive ever changes here.
type Profile struct {
	ID          string
	DisplayName string
	Age         int

	// Location is nil when the user never shared coordinates.
	Location *shared.GeoPoint

	// Metrics is nil before the first fitness sync.
	Metrics *fitness.Metrics

	LastActive time.Time
}

// HasLocation reports whether the profile carries coordinates.
func (p Profile) HasLocation() bool {
	return p.Location != nil
}

// Favorites returns the favorite activity labels, empty without metrics.
func (p Profile) Favorites() []string {
	if p.Metrics == nil {
		return nil
	}
	return p.Metrics.FavoriteActivities
}

// Summary returns the public card shown to other users.
func (p Profile) Summary() UserSummary {
	return UserSummary{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Age:         p.Age,
		LastActive:  p.LastActive,
	}
}

// UserSummary is the minimal public view of another user.
type UserSummary struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Age         int       `json:"age"`
	LastActive  time.Time `json:"lastActive"`
}

// NearbyProfile is a geo query hit.
type NearbyProfile struct {
	Profile
	DistanceKm float64
}
