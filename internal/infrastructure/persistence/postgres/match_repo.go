package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// MatchRepository implements matching.MatchRepository. Pair uniqueness is
// enforced by uq_matches_pair.
type MatchRepository struct {
	conn *Connection
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(conn *Connection) *MatchRepository {
	return &MatchRepository{conn: conn}
}

var _ matching.MatchRepository = (*MatchRepository)(nil)

const matchColumns = `id::text, user1_id, user2_id, compatibility_score, status, matched_at, archived_at`

// Create inserts m.
func (r *MatchRepository) Create(ctx context.Context, m *matching.Match) error {
	pair := m.Pair()
	_, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO matches (id, user1_id, user2_id, user_low, user_high,
			compatibility_score, status, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.User1ID, m.User2ID, pair.Low, pair.High,
		m.CompatibilityScore, string(m.Status), m.MatchedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewConflictError("postgres", "CreateMatch", "match already exists for pair")
		}
		if IsForeignKeyViolation(err) {
			return shared.NewNotFoundError("postgres", "CreateMatch", "user not found")
		}
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

// GetByID returns the match.
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*matching.Match, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, shared.NewNotFoundError("postgres", "GetMatch", "match not found")
	}
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, key)
	m, err := scanMatch(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewNotFoundError("postgres", "GetMatch", "match not found")
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// FindByPair returns the match of the unordered pair in any status.
func (r *MatchRepository) FindByPair(ctx context.Context, userA, userB string) (*matching.Match, error) {
	pair := matching.NormalizePair(userA, userB)
	row := r.conn.Pool().QueryRow(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE user_low = $1 AND user_high = $2`, pair.Low, pair.High)
	m, err := scanMatch(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewNotFoundError("postgres", "FindMatchByPair", "match not found")
		}
		return nil, fmt.Errorf("find match by pair: %w", err)
	}
	return m, nil
}

// Archive flips an active match in a single conditional update.
func (r *MatchRepository) Archive(ctx context.Context, id string, at time.Time) (bool, error) {
	key, ok := parseID(id)
	if !ok {
		return false, shared.NewNotFoundError("postgres", "ArchiveMatch", "match not found")
	}
	tag, err := r.conn.Pool().Exec(ctx, `
		UPDATE matches SET status = $2, archived_at = $3
		WHERE id = $1 AND status = $4`,
		key, string(matching.StatusArchived), at, string(matching.StatusActive))
	if err != nil {
		return false, fmt.Errorf("archive match: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.conn.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)`, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("archive match: %w", err)
	}
	if !exists {
		return false, shared.NewNotFoundError("postgres", "ArchiveMatch", "match not found")
	}
	return false, nil
}

// ListByUser returns one page of the user's matches, newest first.
func (r *MatchRepository) ListByUser(ctx context.Context, userID string, filter matching.ListFilter) ([]*matching.Match, int, error) {
	statusClause := ` AND status = 'active'`
	if filter.IncludeArchived {
		statusClause = ``
	}
	where := ` WHERE (user1_id = $1 OR user2_id = $1)` + statusClause

	var total int
	if err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM matches`+where, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	page := filter.Page
	if page.Limit == 0 {
		page = shared.NewPage(page.Number, page.Limit)
	}
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT `+matchColumns+` FROM matches`+where+`
		ORDER BY matched_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list matches: %w", err)
	}
	list, err := collectMatches(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListActiveByUser returns every active match of the user.
func (r *MatchRepository) ListActiveByUser(ctx context.Context, userID string) ([]*matching.Match, error) {
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT `+matchColumns+` FROM matches
		WHERE (user1_id = $1 OR user2_id = $1) AND status = 'active'
		ORDER BY matched_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active matches: %w", err)
	}
	return collectMatches(rows)
}

// MatchedUserIDs returns the counterpart of every match in any status.
func (r *MatchRepository) MatchedUserIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT CASE WHEN user1_id = $1 THEN user2_id ELSE user1_id END
		FROM matches
		WHERE user1_id = $1 OR user2_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("matched user ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("matched user ids: %w", err)
	}
	return ids, nil
}

// Stats aggregates the whole ledger.
func (r *MatchRepository) Stats(ctx context.Context) (matching.LedgerStats, error) {
	var s matching.LedgerStats
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'archived'),
			COALESCE(AVG(compatibility_score), 0)::float8
		FROM matches`).
		Scan(&s.TotalMatches, &s.ActiveMatches, &s.ArchivedMatches, &s.AverageScore)
	if err != nil {
		return s, fmt.Errorf("match stats: %w", err)
	}
	return s, nil
}

func scanMatch(row pgx.Row) (*matching.Match, error) {
	var m matching.Match
	var status string
	if err := row.Scan(&m.ID, &m.User1ID, &m.User2ID, &m.CompatibilityScore, &status, &m.MatchedAt, &m.ArchivedAt); err != nil {
		return nil, err
	}
	m.Status = matching.Status(status)
	return &m, nil
}

func collectMatches(rows pgx.Rows) ([]*matching.Match, error) {
	defer rows.Close()
	var out []*matching.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// PreferencesRepository implements matching.PreferencesRepository.
type PreferencesRepository struct {
	conn *Connection
}

// NewPreferencesRepository creates a new PreferencesRepository.
func NewPreferencesRepository(conn *Connection) *PreferencesRepository {
	return &PreferencesRepository{conn: conn}
}

var _ matching.PreferencesRepository = (*PreferencesRepository)(nil)

// Get returns the stored preferences.
func (r *PreferencesRepository) Get(ctx context.Context, userID string) (*matching.Preferences, error) {
	p := matching.Preferences{UserID: userID}
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT min_age, max_age, max_distance_km, preferred_activities,
			min_compatibility_score, created_at, updated_at
		FROM matching_preferences WHERE user_id = $1`, userID).
		Scan(&p.MinAge, &p.MaxAge, &p.MaxDistanceKm, &p.PreferredActivities,
			&p.MinCompatibilityScore, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewNotFoundError("postgres", "GetPreferences", "preferences not found")
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

// Save upserts p; created_at is kept from the first insert.
func (r *PreferencesRepository) Save(ctx context.Context, p *matching.Preferences) error {
	activities := p.PreferredActivities
	if activities == nil {
		activities = []string{}
	}
	_, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO matching_preferences (user_id, min_age, max_age, max_distance_km,
			preferred_activities, min_compatibility_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			min_age = EXCLUDED.min_age,
			max_age = EXCLUDED.max_age,
			max_distance_km = EXCLUDED.max_distance_km,
			preferred_activities = EXCLUDED.preferred_activities,
			min_compatibility_score = EXCLUDED.min_compatibility_score,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.MinAge, p.MaxAge, p.MaxDistanceKm, activities,
		p.MinCompatibilityScore, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NewNotFoundError("postgres", "SavePreferences", "user not found")
		}
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
