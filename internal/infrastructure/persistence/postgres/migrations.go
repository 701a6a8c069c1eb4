package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	AppliedAt time.Time
	IsApplied bool
}

const migrationsTable = "schema_migrations"

// Migrator applies the embedded migrations in version order.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	migs := Migrations()
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return &Migrator{conn: conn, migrations: migs}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, `SELECT version, applied_at FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+migrationsTable+` (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Status lists every migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// Pending names the migrations in status that are not applied, in order.
func Pending(status []Migration) []string {
	var out []string
	for _, mig := range status {
		if !mig.IsApplied {
			out = append(out, fmt.Sprintf("%03d_%s", mig.Version, mig.Name))
		}
	}
	return out
}

// Migrations returns the embedded schema history.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_users", UpSQL: migration001Up},
		{Version: 2, Name: "create_fitness_stats", UpSQL: migration002Up},
		{Version: 3, Name: "create_matches", UpSQL: migration003Up},
		{Version: 4, Name: "create_matching_preferences", UpSQL: migration004Up},
		{Version: 5, Name: "create_messages", UpSQL: migration005Up},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL,
    age INTEGER NOT NULL,
    latitude DOUBLE PRECISION,
    longitude DOUBLE PRECISION,
    last_active TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_age CHECK (age >= 0 AND age <= 150),
    CONSTRAINT location_pair CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_users_lat_lon ON users(latitude, longitude)
    WHERE latitude IS NOT NULL;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: FITNESS STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS fitness_stats (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    weekly_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
    weekly_activities INTEGER NOT NULL DEFAULT 0,
    average_pace DOUBLE PRECISION,
    favorite_activities TEXT[] NOT NULL DEFAULT '{}',
    total_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
    computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: MATCHES
// ══════════════════════════════════════════════════════════════════════════════

// The unique index on the normalized pair spans every status, so an archived
// pair can never be matched again.
const migration003Up = `
CREATE TABLE IF NOT EXISTS matches (
    id UUID PRIMARY KEY,
    user1_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    user2_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    user_low TEXT NOT NULL,
    user_high TEXT NOT NULL,
    compatibility_score INTEGER NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    matched_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    archived_at TIMESTAMPTZ,

    CONSTRAINT distinct_users CHECK (user1_id <> user2_id),
    CONSTRAINT ordered_pair CHECK (user_low < user_high),
    CONSTRAINT valid_score CHECK (compatibility_score BETWEEN 0 AND 100),
    CONSTRAINT valid_status CHECK (status IN ('active', 'archived'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_matches_pair ON matches(user_low, user_high);
CREATE INDEX IF NOT EXISTS idx_matches_user1 ON matches(user1_id, matched_at DESC);
CREATE INDEX IF NOT EXISTS idx_matches_user2 ON matches(user2_id, matched_at DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: MATCHING PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE TABLE IF NOT EXISTS matching_preferences (
    user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    min_age INTEGER NOT NULL DEFAULT 18,
    max_age INTEGER NOT NULL DEFAULT 100,
    max_distance_km INTEGER NOT NULL DEFAULT 50,
    preferred_activities TEXT[] NOT NULL DEFAULT '{}',
    min_compatibility_score INTEGER NOT NULL DEFAULT 50,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_age_range CHECK (min_age >= 18 AND max_age <= 100 AND min_age <= max_age),
    CONSTRAINT valid_distance CHECK (max_distance_km BETWEEN 1 AND 1000),
    CONSTRAINT valid_min_score CHECK (min_compatibility_score BETWEEN 0 AND 100)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

const migration005Up = `
CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    match_id UUID NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    sender_id TEXT NOT NULL,
    content TEXT NOT NULL,
    sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    read_at TIMESTAMPTZ,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_messages_match_order ON messages(match_id, sent_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(match_id, sender_id)
    WHERE is_read = FALSE AND is_deleted = FALSE;
`
