package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements matching.UserDirectory on the users table joined
// with fitness_stats.
type UserRepository struct {
	conn *Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn *Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

var _ matching.UserDirectory = (*UserRepository)(nil)

const profileColumns = `
	u.id, u.display_name, u.age, u.latitude, u.longitude, u.last_active,
	f.weekly_distance, f.weekly_activities, f.average_pace,
	f.favorite_activities, f.total_distance, f.computed_at`

const profileFrom = `
	FROM users u
	LEFT JOIN fitness_stats f ON f.user_id = u.id`

// Upsert stores the user row and, when present, its metrics snapshot.
func (r *UserRepository) Upsert(ctx context.Context, p matching.Profile) error {
	var lat, lon *float64
	if p.Location != nil {
		lat, lon = &p.Location.Lat, &p.Location.Lon
	}
	lastActive := p.LastActive
	if lastActive.IsZero() {
		lastActive = time.Now().UTC()
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, display_name, age, latitude, longitude, last_active)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				age = EXCLUDED.age,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				last_active = EXCLUDED.last_active`,
			p.ID, p.DisplayName, p.Age, lat, lon, lastActive)
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if p.Metrics == nil {
			return nil
		}
		return saveMetrics(ctx, tx, p.ID, *p.Metrics)
	})
}

// TouchLastActive updates the user's last activity time.
func (r *UserRepository) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	tag, err := r.conn.Pool().Exec(ctx, `UPDATE users SET last_active = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("postgres", "TouchLastActive", "user not found")
	}
	return nil
}

// GetProfile implements matching.UserDirectory.
func (r *UserRepository) GetProfile(ctx context.Context, userID string) (*matching.Profile, error) {
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+profileColumns+profileFrom+` WHERE u.id = $1`, userID)
	p, err := scanProfile(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewNotFoundError("postgres", "GetProfile", "user not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetProfiles implements matching.UserDirectory.
func (r *UserRepository) GetProfiles(ctx context.Context, ids []string) (map[string]*matching.Profile, error) {
	out := make(map[string]*matching.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.conn.Pool().Query(ctx, `SELECT `+profileColumns+profileFrom+` WHERE u.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// FindWithinRadius prefilters by bounding box, then ranks by great-circle
// distance computed in SQL. A box crossing the antimeridian matches either
// side of it.
func (r *UserRepository) FindWithinRadius(ctx context.Context, center shared.GeoPoint, radiusKm float64, exclude []string, limit int) ([]matching.NearbyProfile, error) {
	if radiusKm <= 0 || limit <= 0 {
		return nil, nil
	}
	if exclude == nil {
		exclude = []string{}
	}
	box := center.BoundingBox(radiusKm)

	rows, err := r.conn.Pool().Query(ctx, `
		WITH candidates AS (
			SELECT `+profileColumns+`,
				2 * $3::float8 * ASIN(SQRT(
					POWER(SIN(RADIANS(u.latitude - $1::float8) / 2), 2) +
					COS(RADIANS($1)) * COS(RADIANS(u.latitude)) *
					POWER(SIN(RADIANS(u.longitude - $2::float8) / 2), 2)
				)) AS distance_km
			`+profileFrom+`
			WHERE u.latitude IS NOT NULL
				AND u.id <> ALL($4::text[])
				AND u.latitude BETWEEN $5 AND $6
				AND (
					($7::float8 <= $8::float8 AND u.longitude BETWEEN $7 AND $8)
					OR ($7::float8 > $8::float8 AND (u.longitude >= $7 OR u.longitude <= $8))
				)
		)
		SELECT * FROM candidates
		WHERE distance_km <= $9
		ORDER BY distance_km ASC, id ASC
		LIMIT $10`,
		center.Lat, center.Lon, shared.EarthRadiusKm, exclude,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, radiusKm, limit)
	if err != nil {
		return nil, fmt.Errorf("find within radius: %w", err)
	}
	defer rows.Close()

	var out []matching.NearbyProfile
	for rows.Next() {
		var distance float64
		p, err := scanProfile(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan nearby: %w", err)
		}
		out = append(out, matching.NearbyProfile{Profile: *p, DistanceKm: distance})
	}
	return out, rows.Err()
}

// CountUsers implements matching.UserDirectory.
func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// scanProfile reads profileColumns followed by any extra destinations.
func scanProfile(row pgx.Row, extra ...any) (*matching.Profile, error) {
	var (
		p          matching.Profile
		lat, lon   *float64
		weeklyDist *float64
		weeklyActs *int
		pace       *float64
		favorites  []string
		total      *float64
		computedAt *time.Time
	)
	dest := []any{
		&p.ID, &p.DisplayName, &p.Age, &lat, &lon, &p.LastActive,
		&weeklyDist, &weeklyActs, &pace, &favorites, &total, &computedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if lat != nil && lon != nil {
		p.Location = &shared.GeoPoint{Lat: *lat, Lon: *lon}
	}
	if computedAt != nil {
		m := &fitness.Metrics{
			AveragePace:        pace,
			FavoriteActivities: favorites,
			ComputedAt:         *computedAt,
		}
		if weeklyDist != nil {
			m.WeeklyDistance = *weeklyDist
		}
		if weeklyActs != nil {
			m.WeeklyActivities = *weeklyActs
		}
		if total != nil {
			m.TotalDistance = *total
		}
		p.Metrics = m
	}
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FITNESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// FitnessRepository implements fitness.Repository on fitness_stats.
type FitnessRepository struct {
	conn *Connection
}

// NewFitnessRepository creates a new FitnessRepository.
func NewFitnessRepository(conn *Connection) *FitnessRepository {
	return &FitnessRepository{conn: conn}
}

var _ fitness.Repository = (*FitnessRepository)(nil)

// Save replaces the snapshot of userID.
func (r *FitnessRepository) Save(ctx context.Context, userID string, m fitness.Metrics) error {
	err := saveMetrics(ctx, r.conn.Pool(), userID, m)
	if IsForeignKeyViolation(err) {
		return shared.NewNotFoundError("postgres", "SaveMetrics", "user not found")
	}
	return err
}

// Get returns the snapshot of userID.
func (r *FitnessRepository) Get(ctx context.Context, userID string) (*fitness.Metrics, error) {
	var m fitness.Metrics
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT weekly_distance, weekly_activities, average_pace,
			favorite_activities, total_distance, computed_at
		FROM fitness_stats WHERE user_id = $1`, userID).
		Scan(&m.WeeklyDistance, &m.WeeklyActivities, &m.AveragePace,
			&m.FavoriteActivities, &m.TotalDistance, &m.ComputedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewNotFoundError("postgres", "GetMetrics", "no fitness snapshot")
		}
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return &m, nil
}

func saveMetrics(ctx context.Context, q Querier, userID string, m fitness.Metrics) error {
	favorites := m.FavoriteActivities
	if favorites == nil {
		favorites = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO fitness_stats (user_id, weekly_distance, weekly_activities,
			average_pace, favorite_activities, total_distance, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			weekly_distance = EXCLUDED.weekly_distance,
			weekly_activities = EXCLUDED.weekly_activities,
			average_pace = EXCLUDED.average_pace,
			favorite_activities = EXCLUDED.favorite_activities,
			total_distance = EXCLUDED.total_distance,
			computed_at = EXCLUDED.computed_at`,
		userID, m.WeeklyDistance, m.WeeklyActivities, m.AveragePace,
		favorites, m.TotalDistance, m.ComputedAt)
	if err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}
