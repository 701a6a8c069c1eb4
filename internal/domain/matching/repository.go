package matching

import (
	"context"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// MatchRepository persists the match ledger.
// Implementations must enforce uniqueness of the normalized pair across all
// statuses; that constraint is the only mutual exclusion matching relies on.
type MatchRepository interface {
	// Create inserts m. It returns shared.ErrAlreadyExists when any match
	// already exists for the pair.
	Create(ctx context.Context, m *Match) error

	// GetByID returns the match or shared.ErrNotFound.
	GetByID(ctx context.Context, id string) (*Match, error)

	// FindByPair returns the match of the unordered pair in any status,
	// or shared.ErrNotFound.
	FindByPair(ctx context.Context, userA, userB string) (*Match, error)

	// Archive performs the active -> archived transition atomically.
	// It reports false when the match was not active.
	Archive(ctx context.Context, id string, at time.Time) (bool, error)

	// ListByUser returns one page of the user's matches ordered by MatchedAt
	// descending, together with the total count.
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Match, int, error)

	// ListActiveByUser returns every active match of the user.
	ListActiveByUser(ctx context.Context, userID string) ([]*Match, error)

	// MatchedUserIDs returns everyone the user has a match with, in any status.
	MatchedUserIDs(ctx context.Context, userID string) ([]string, error)

	// Stats aggregates the whole ledger.
	Stats(ctx context.Context) (LedgerStats, error)
}

// ListFilter selects a page of matches.
type ListFilter struct {
	Page            shared.Page
	IncludeArchived bool
}

// LedgerStats is the aggregate view of all matches.
type LedgerStats struct {
	TotalMatches    int
	ActiveMatches   int
	ArchivedMatches int
	// AverageScore is 0 when there are no matches.
	AverageScore float64
}

// PreferencesRepository stores one Preferences per user.
type PreferencesRepository interface {
	// Get returns the stored preferences or shared.ErrNotFound.
	Get(ctx context.Context, userID string) (*Preferences, error)

	// Save upserts p.
	Save(ctx context.Context, p *Preferences) error
}

// UserDirectory reads users owned by the surrounding system.
type UserDirectory interface {
	// GetProfile returns one user with metrics, or shared.ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// GetProfiles returns the users found among ids keyed by id.
	GetProfiles(ctx context.Context, ids []string) (map[string]*Profile, error)

	// FindWithinRadius returns users within radiusKm of center, nearest
	// first, skipping the ids in exclude and users without coordinates.
	// Exclusion happens before at most limit users are taken.
	FindWithinRadius(ctx context.Context, center shared.GeoPoint, radiusKm float64, exclude []string, limit int) ([]NearbyProfile, error)

	// CountUsers returns the number of known users.
	CountUsers(ctx context.Context) (int, error)
}
