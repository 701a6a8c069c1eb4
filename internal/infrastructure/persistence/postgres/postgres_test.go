package postgres

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/storetest"
	"github.com/fitmatch/fitmatch-core/pkg/seal"
)

func TestParseID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		in string
		ok bool
	}{
		{id.String(), true},
		{strings.ToUpper(id.String()), true},
		{"", false},
		{"m1", false},
		{"' OR 1=1 --", false},
	}
	for _, tt := range tests {
		got, ok := parseID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, id, got)
		}
	}
}

func TestPending(t *testing.T) {
	status := Migrations()
	status[0].IsApplied = true
	status[1].IsApplied = true

	assert.Equal(t, []string{"003_create_matches", "004_create_matching_preferences", "005_create_messages"}, Pending(status))

	for i := range status {
		status[i].IsApplied = true
	}
	assert.Empty(t, Pending(status))
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	foreign := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(foreign))
	assert.True(t, IsForeignKeyViolation(foreign))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(unique))
}

// ══════════════════════════════════════════════════════════════════════════════
// DATABASE-BACKED
// ══════════════════════════════════════════════════════════════════════════════

// testConnection connects to FITMATCH_TEST_DATABASE_URL and migrates it.
// The database is truncated; never point it at real data.
func testConnection(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("FITMATCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FITMATCH_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := Connect(ctx, url, DefaultPoolOptions())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return conn
}

func truncate(t *testing.T, conn *Connection) {
	t.Helper()
	_, err := conn.Pool().Exec(context.Background(),
		`TRUNCATE messages, matching_preferences, matches, fitness_stats, users CASCADE`)
	require.NoError(t, err)
}

func testSealer(t *testing.T) *seal.Sealer {
	t.Helper()
	s, err := seal.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	conn := testConnection(t)
	sealer := testSealer(t)

	storetest.Run(t, func(t *testing.T) storetest.Backend {
		truncate(t, conn)
		return storetest.Backend{
			Users:    NewUserRepository(conn),
			Matches:  NewMatchRepository(conn),
			Messages: NewMessageRepository(conn, sealer),
		}
	})
}

func TestMessageRepository_SealsContentAtRest(t *testing.T) {
	conn := testConnection(t)
	truncate(t, conn)
	ctx := context.Background()
	users := NewUserRepository(conn)
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, users.Upsert(ctx, matching.Profile{ID: id, Age: 30}))
	}
	m, err := matching.NewMatch(uuid.NewString(), "alice", "bob", 80, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, NewMatchRepository(conn).Create(ctx, m))

	repo := NewMessageRepository(conn, testSealer(t))
	msg, err := conversation.NewMessage(uuid.NewString(), m.ID, "alice", "see you at the track", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, msg))

	var stored string
	require.NoError(t, conn.Pool().QueryRow(ctx, `SELECT content FROM messages WHERE id = $1`, msg.ID).Scan(&stored))
	assert.True(t, strings.HasPrefix(stored, "v1:"))
	assert.NotContains(t, stored, "track")

	got, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "see you at the track", got.Content)

	_, err = NewMessageRepository(conn, nil).GetByID(ctx, msg.ID)
	assert.Error(t, err, "sealed rows need the key")
}

func TestMatchRepository_CreateMapsMissingUser(t *testing.T) {
	conn := testConnection(t)
	truncate(t, conn)
	m, err := matching.NewMatch(uuid.NewString(), "ghost", "nobody", 50, time.Now().UTC())
	require.NoError(t, err)

	err = NewMatchRepository(conn).Create(context.Background(), m)
	assert.True(t, shared.IsNotFound(err), "got %v", err)
}
