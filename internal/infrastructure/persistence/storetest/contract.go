// Package storetest holds the behaviour every persistence backend must share.
// Backends run it from their own tests so the memory store and postgres
// cannot drift apart.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// Users is the user directory plus the write side tests need.
type Users interface {
	matching.UserDirectory
	Upsert(ctx context.Context, p matching.Profile) error
}

// Backend is one empty store under test.
type Backend struct {
	Users    Users
	Matches  matching.MatchRepository
	Messages conversation.Repository
}

// Run executes the contract. newBackend must return an empty store each call.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("PairIsUniqueInEitherOrder", func(t *testing.T) { pairIsUnique(t, newBackend(t)) })
	t.Run("ArchiveIsOneWay", func(t *testing.T) { archiveIsOneWay(t, newBackend(t)) })
	t.Run("UnknownIDsAreNotFound", func(t *testing.T) { unknownIDs(t, newBackend(t)) })
	t.Run("RadiusSearchExcludesBeforeLimit", func(t *testing.T) { radiusExcludes(t, newBackend(t)) })
	t.Run("RadiusSearchCrossesAntimeridian", func(t *testing.T) { radiusAntimeridian(t, newBackend(t)) })
	t.Run("MessagesNewestFirst", func(t *testing.T) { messagesNewestFirst(t, newBackend(t)) })
	t.Run("ReadReceiptsAndUnread", func(t *testing.T) { readReceipts(t, newBackend(t)) })
	t.Run("SoftDeleteOnce", func(t *testing.T) { softDeleteOnce(t, newBackend(t)) })
}

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, b Backend, id string, at shared.GeoPoint) {
	t.Helper()
	require.NoError(t, b.Users.Upsert(context.Background(), matching.Profile{
		ID:          id,
		DisplayName: "user " + id,
		Age:         30,
		Location:    &at,
		Metrics:     &fitness.Metrics{WeeklyDistance: 20000, FavoriteActivities: []string{"Run"}, ComputedAt: epoch},
		LastActive:  epoch,
	}))
}

func seedMatch(t *testing.T, b Backend, a, c string) *matching.Match {
	t.Helper()
	m, err := matching.NewMatch(uuid.NewString(), a, c, 75, epoch)
	require.NoError(t, err)
	require.NoError(t, b.Matches.Create(context.Background(), m))
	return m
}

func seedMessage(t *testing.T, b Backend, matchID, sender, content string, at time.Time) *conversation.Message {
	t.Helper()
	msg, err := conversation.NewMessage(uuid.NewString(), matchID, sender, content, at)
	require.NoError(t, err)
	require.NoError(t, b.Messages.Append(context.Background(), msg))
	return msg
}

var nyc = shared.GeoPoint{Lat: 40.7128, Lon: -74.0060}

func pairIsUnique(t *testing.T, b Backend) {
	ctx := context.Background()
	seedUser(t, b, "alice", nyc)
	seedUser(t, b, "bob", nyc)
	first := seedMatch(t, b, "bob", "alice")

	again, err := matching.NewMatch(uuid.NewString(), "alice", "bob", 60, epoch)
	require.NoError(t, err)
	err = b.Matches.Create(ctx, again)
	assert.True(t, shared.IsConflict(err), "got %v", err)

	found, err := b.Matches.FindByPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, 75, found.CompatibilityScore)
}

func archiveIsOneWay(t *testing.T, b Backend) {
	ctx := context.Background()
	seedUser(t, b, "alice", nyc)
	seedUser(t, b, "bob", nyc)
	m := seedMatch(t, b, "alice", "bob")

	changed, err := b.Matches.Archive(ctx, m.ID, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = b.Matches.Archive(ctx, m.ID, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := b.Matches.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, matching.StatusArchived, got.Status)
	require.NotNil(t, got.ArchivedAt)
	assert.True(t, got.ArchivedAt.Equal(epoch.Add(time.Hour)))

	active, err := b.Matches.ListActiveByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, active)
	ids, err := b.Matches.MatchedUserIDs(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)
}

func unknownIDs(t *testing.T, b Backend) {
	ctx := context.Background()
	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := b.Matches.GetByID(ctx, id)
		assert.True(t, shared.IsNotFound(err), "match %q: %v", id, err)

		_, err = b.Matches.Archive(ctx, id, epoch)
		assert.True(t, shared.IsNotFound(err), "archive %q: %v", id, err)

		_, err = b.Messages.GetByID(ctx, id)
		assert.True(t, shared.IsNotFound(err), "message %q: %v", id, err)

		last, err := b.Messages.LastMessage(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, last)
	}
}

func radiusExcludes(t *testing.T, b Backend) {
	ctx := context.Background()
	seedUser(t, b, "me", nyc)
	for i := 0; i < 6; i++ {
		seedUser(t, b, fmt.Sprintf("u%d", i), shared.GeoPoint{Lat: nyc.Lat + float64(i+1)*0.01, Lon: nyc.Lon})
	}
	seedUser(t, b, "far", shared.GeoPoint{Lat: 34.05, Lon: -118.24})

	hits, err := b.Users.FindWithinRadius(ctx, nyc, 50, []string{"me", "u0", "u1"}, 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"u2", "u3", "u4"}, ids)
	assert.InDelta(t, 3.3, hits[0].DistanceKm, 0.1)
}

func radiusAntimeridian(t *testing.T, b Backend) {
	center := shared.GeoPoint{Lat: -17.7, Lon: 179.9}
	seedUser(t, b, "east", shared.GeoPoint{Lat: -17.7, Lon: -179.9})
	seedUser(t, b, "west", shared.GeoPoint{Lat: -17.7, Lon: 179.7})

	hits, err := b.Users.FindWithinRadius(context.Background(), center, 50, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].ID)
	assert.InDelta(t, 21.2, hits[0].DistanceKm, 0.1)
}

func messagesNewestFirst(t *testing.T, b Backend) {
	ctx := context.Background()
	seedUser(t, b, "alice", nyc)
	seedUser(t, b, "bob", nyc)
	m := seedMatch(t, b, "alice", "bob")

	first := seedMessage(t, b, m.ID, "alice", "one", epoch)
	second := seedMessage(t, b, m.ID, "bob", "two", epoch)
	third := seedMessage(t, b, m.ID, "alice", "three", epoch.Add(time.Minute))
	assert.Greater(t, second.Seq, first.Seq)

	page, total, err := b.Messages.ListByMatch(ctx, m.ID, shared.NewPage(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, third.ID, page[0].ID)
	assert.Equal(t, second.ID, page[1].ID, "equal sent_at falls back to seq")
	assert.Equal(t, "two", page[1].Content)

	last, err := b.Messages.LastMessage(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, third.ID, last.ID)
}

func readReceipts(t *testing.T, b Backend) {
	ctx := context.Background()
	seedUser(t, b, "alice", nyc)
	seedUser(t, b, "bob", nyc)
	seedUser(t, b, "carol", nyc)
	ab := seedMatch(t, b, "alice", "bob")
	bc := seedMatch(t, b, "bob", "carol")

	own := seedMessage(t, b, ab.ID, "bob", "mine", epoch)
	seedMessage(t, b, ab.ID, "alice", "hi bob", epoch)
	seedMessage(t, b, ab.ID, "alice", "still there?", epoch.Add(time.Second))
	seedMessage(t, b, bc.ID, "carol", "hey", epoch)

	n, err := b.Messages.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	changed, err := b.Messages.MarkRead(ctx, own.ID, "bob", epoch)
	require.NoError(t, err)
	assert.False(t, changed, "senders never mark their own messages")

	flipped, err := b.Messages.MarkConversationRead(ctx, ab.ID, "bob", epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, flipped)
	flipped, err = b.Messages.MarkConversationRead(ctx, ab.ID, "bob", epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, flipped)

	_, err = b.Matches.Archive(ctx, bc.ID, epoch)
	require.NoError(t, err)
	n, err = b.Messages.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, n, "archived matches do not count")

	n, err = b.Messages.CountUnreadInMatch(ctx, ab.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func softDeleteOnce(t *testing.T, b Backend) {
	ctx := context.Background()
	seedUser(t, b, "alice", nyc)
	seedUser(t, b, "bob", nyc)
	m := seedMatch(t, b, "alice", "bob")
	msg := seedMessage(t, b, m.ID, "alice", "oops", epoch)

	changed, err := b.Messages.SoftDelete(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = b.Messages.SoftDelete(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := b.Messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, conversation.DeletedMarker, got.Content)

	n, err := b.Messages.CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
}
