package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/memory"
)

type fixture struct {
	store   *memory.Store
	gate    *conversation.Gate
	create  *CreateMatchHandler
	archive *ArchiveMatchHandler
	send    *SendMessageHandler
	read    *MarkAsReadHandler
	readAll *MarkConversationAsReadHandler
	del     *DeleteMessageHandler
	prefs   *UpdatePreferencesHandler
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	store := memory.NewStore()
	for _, id := range users {
		require.NoError(t, store.Users().Upsert(context.Background(), matching.Profile{ID: id, DisplayName: id, Age: 30}))
	}
	gate := conversation.NewGate(store.Matches())
	return &fixture{
		store:   store,
		gate:    gate,
		create:  NewCreateMatchHandler(store.Matches(), store.Users()),
		archive: NewArchiveMatchHandler(store.Matches()),
		send:    NewSendMessageHandler(gate, store.Messages()),
		read:    NewMarkAsReadHandler(gate, store.Messages()),
		readAll: NewMarkConversationAsReadHandler(gate, store.Messages()),
		del:     NewDeleteMessageHandler(gate, store.Messages()),
		prefs:   NewUpdatePreferencesHandler(store.Preferences()),
	}
}

func (f *fixture) match(t *testing.T, a, b string) *matching.Match {
	t.Helper()
	res, err := f.create.Handle(context.Background(), CreateMatchCommand{UserID: a, TargetUserID: b, CompatibilityScore: 75})
	require.NoError(t, err)
	return res.Match
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateMatch_EmitsToBothUsers(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	res, err := f.create.Handle(context.Background(), CreateMatchCommand{UserID: "alice", TargetUserID: "bob", CompatibilityScore: 74})

	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, matching.StatusActive, res.Match.Status)
	assert.Equal(t, 74, res.Match.CompatibilityScore)
	require.Len(t, res.Outbox, 2)
	assert.Equal(t, shared.ToUser("alice", res.Outbox[0].Event), res.Outbox[0])
	assert.Equal(t, "bob", res.Outbox[1].Target)
	assert.Equal(t, shared.EventMatchCreated, res.Outbox[1].Event.EventType())
}

func TestCreateMatch_IsIdempotentForActivePair(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	first := f.match(t, "alice", "bob")

	res, err := f.create.Handle(context.Background(), CreateMatchCommand{UserID: "bob", TargetUserID: "alice", CompatibilityScore: 10})

	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, first.ID, res.Match.ID)
	assert.Equal(t, 75, res.Match.CompatibilityScore, "score is the creation snapshot")
	assert.Empty(t, res.Outbox)
}

func TestCreateMatch_ConcurrentCallsYieldOneMatch(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	results := make([]*CreateMatchResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := CreateMatchCommand{UserID: "alice", TargetUserID: "bob", CompatibilityScore: 70}
			if i%2 == 1 {
				cmd.UserID, cmd.TargetUserID = "bob", "alice"
			}
			results[i], errs[i] = f.create.Handle(ctx, cmd)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Match.ID, results[i].Match.ID)
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	stats, err := f.store.Matches().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMatches)
	assert.Equal(t, 1, stats.ActiveMatches)
}

func TestCreateMatch_Validation(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := f.create.Handle(ctx, CreateMatchCommand{UserID: "alice", TargetUserID: "alice", CompatibilityScore: 50})
	assert.True(t, shared.IsValidation(err))

	_, err = f.create.Handle(ctx, CreateMatchCommand{UserID: "alice", TargetUserID: "bob", CompatibilityScore: 150})
	assert.True(t, shared.IsValidation(err))

	_, err = f.create.Handle(ctx, CreateMatchCommand{UserID: "alice", TargetUserID: "ghost", CompatibilityScore: 50})
	assert.True(t, shared.IsNotFound(err))
}

func TestCreateMatch_ArchivedPairConflicts(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")
	_, err := f.archive.Handle(ctx, ArchiveMatchCommand{MatchID: m.ID, UserID: "bob"})
	require.NoError(t, err)

	_, err = f.create.Handle(ctx, CreateMatchCommand{UserID: "alice", TargetUserID: "bob", CompatibilityScore: 50})

	assert.True(t, shared.IsConflict(err))
}

func TestArchiveMatch_TwiceIsNoOp(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")

	first, err := f.archive.Handle(ctx, ArchiveMatchCommand{MatchID: m.ID, UserID: "alice"})
	require.NoError(t, err)
	assert.True(t, first.Archived)
	assert.Equal(t, matching.StatusArchived, first.Match.Status)
	require.Len(t, first.Outbox, 1)
	assert.Equal(t, shared.AudienceMatchRoom, first.Outbox[0].Audience)
	assert.Equal(t, m.ID, first.Outbox[0].Target)

	second, err := f.archive.Handle(ctx, ArchiveMatchCommand{MatchID: m.ID, UserID: "bob"})
	require.NoError(t, err)
	assert.False(t, second.Archived)
	assert.Equal(t, matching.StatusArchived, second.Match.Status)
	assert.Empty(t, second.Outbox)
}

func TestArchiveMatch_Authorization(t *testing.T) {
	f := newFixture(t, "alice", "bob", "mallory")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")

	_, err := f.archive.Handle(ctx, ArchiveMatchCommand{MatchID: m.ID, UserID: "mallory"})
	assert.Equal(t, shared.ReasonNotParticipant, shared.AuthorizationReason(err))

	_, err = f.archive.Handle(ctx, ArchiveMatchCommand{MatchID: "nope", UserID: "alice"})
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSATION
// ══════════════════════════════════════════════════════════════════════════════

func TestSendMessage(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	m := f.match(t, "alice", "bob")

	res, err := f.send.Handle(context.Background(), SendMessageCommand{
		SenderID: "alice", RecipientID: "bob", MatchID: m.ID, Content: "  see you at the track  ",
	})

	require.NoError(t, err)
	assert.Equal(t, "see you at the track", res.Message.Content)
	assert.False(t, res.Message.IsRead)
	require.Len(t, res.Outbox, 2)
	assert.Equal(t, shared.ToUser("bob", res.Outbox[0].Event), res.Outbox[0])
	assert.Equal(t, shared.ToMatchRoom(m.ID, res.Outbox[1].Event), res.Outbox[1])
	assert.Equal(t, "see you at the track", res.Outbox[0].Event.Payload()["content"])
}

func TestSendMessage_AfterArchiveIsNotMatched(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")
	_, err := f.archive.Handle(ctx, ArchiveMatchCommand{MatchID: m.ID, UserID: "alice"})
	require.NoError(t, err)

	_, err = f.send.Handle(ctx, SendMessageCommand{SenderID: "alice", RecipientID: "bob", MatchID: m.ID, Content: "hello?"})

	require.Error(t, err)
	assert.True(t, shared.IsAuthorization(err))
	assert.Equal(t, shared.ReasonNotMatched, shared.AuthorizationReason(err))
	assert.Contains(t, err.Error(), "not matched")
}

func TestSendMessage_RejectsBadContent(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	m := f.match(t, "alice", "bob")

	_, err := f.send.Handle(context.Background(), SendMessageCommand{SenderID: "alice", RecipientID: "bob", MatchID: m.ID, Content: "   "})

	assert.True(t, shared.IsValidation(err))
}

func TestMarkConversationAsRead_ClearsUnread(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.send.Handle(ctx, SendMessageCommand{SenderID: "alice", RecipientID: "bob", MatchID: m.ID, Content: text})
		require.NoError(t, err)
	}
	_, err := f.send.Handle(ctx, SendMessageCommand{SenderID: "bob", RecipientID: "alice", MatchID: m.ID, Content: "reply"})
	require.NoError(t, err)

	unread, err := f.store.Messages().CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	res, err := f.readAll.Handle(ctx, MarkConversationAsReadCommand{MatchID: m.ID, ReaderID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ReadCount)
	require.Len(t, res.Outbox, 1)
	assert.Equal(t, "alice", res.Outbox[0].Target)

	unread, err = f.store.Messages().CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, unread)

	// alice's unread reply is untouched
	unread, err = f.store.Messages().CountUnread(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	again, err := f.readAll.Handle(ctx, MarkConversationAsReadCommand{MatchID: m.ID, ReaderID: "bob"})
	require.NoError(t, err)
	assert.Zero(t, again.ReadCount)
	assert.Empty(t, again.Outbox, "no receipt when nothing flipped")
}

func TestMarkAsRead(t *testing.T) {
	f := newFixture(t, "alice", "bob", "mallory")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")
	sent, err := f.send.Handle(ctx, SendMessageCommand{SenderID: "alice", RecipientID: "bob", MatchID: m.ID, Content: "hi"})
	require.NoError(t, err)
	id := sent.Message.ID

	own, err := f.read.Handle(ctx, MarkAsReadCommand{MessageID: id, ReaderID: "alice"})
	require.NoError(t, err)
	assert.False(t, own.Changed, "sender does not flip own message")

	_, err = f.read.Handle(ctx, MarkAsReadCommand{MessageID: id, ReaderID: "mallory"})
	assert.Equal(t, shared.ReasonNotParticipant, shared.AuthorizationReason(err))

	res, err := f.read.Handle(ctx, MarkAsReadCommand{MessageID: id, ReaderID: "bob"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Message.IsRead)
	require.Len(t, res.Outbox, 1)
	assert.Equal(t, shared.ToUser("alice", res.Outbox[0].Event), res.Outbox[0])

	res, err = f.read.Handle(ctx, MarkAsReadCommand{MessageID: id, ReaderID: "bob"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Outbox)

	_, err = f.read.Handle(ctx, MarkAsReadCommand{MessageID: "missing", ReaderID: "bob"})
	assert.True(t, shared.IsNotFound(err))
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()
	m := f.match(t, "alice", "bob")
	sent, err := f.send.Handle(ctx, SendMessageCommand{SenderID: "alice", RecipientID: "bob", MatchID: m.ID, Content: "oops"})
	require.NoError(t, err)

	_, err = f.del.Handle(ctx, DeleteMessageCommand{MessageID: sent.Message.ID, RequesterID: "bob"})
	assert.Equal(t, shared.ReasonNotSender, shared.AuthorizationReason(err))

	res, err := f.del.Handle(ctx, DeleteMessageCommand{MessageID: sent.Message.ID, RequesterID: "alice"})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.True(t, res.Message.IsDeleted)
	assert.Equal(t, conversation.DeletedMarker, res.Message.Content)
	require.Len(t, res.Outbox, 1)
	assert.Equal(t, shared.EventMessageDeleted, res.Outbox[0].Event.EventType())

	unread, err := f.store.Messages().CountUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, unread, "deleted messages do not count as unread")

	res, err = f.del.Handle(ctx, DeleteMessageCommand{MessageID: sent.Message.ID, RequesterID: "alice"})
	require.NoError(t, err)
	assert.False(t, res.Deleted)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

func intPtr(v int) *int { return &v }

func TestUpdatePreferences_MergesPartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.prefs.Handle(ctx, UpdatePreferencesCommand{
		UserID: "alice",
		Update: matching.PreferencesUpdate{MaxDistanceKm: intPtr(25)},
	})
	require.NoError(t, err)
	assert.Equal(t, 25, res.Preferences.MaxDistanceKm)
	assert.Equal(t, 18, res.Preferences.MinAge)

	res, err = f.prefs.Handle(ctx, UpdatePreferencesCommand{
		UserID: "alice",
		Update: matching.PreferencesUpdate{MinAge: intPtr(25)},
	})
	require.NoError(t, err)
	assert.Equal(t, 25, res.Preferences.MinAge)
	assert.Equal(t, 25, res.Preferences.MaxDistanceKm, "earlier update survives")
}

func TestUpdatePreferences_InvertedAgeRangeIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.prefs.Handle(ctx, UpdatePreferencesCommand{
		UserID: "alice",
		Update: matching.PreferencesUpdate{MaxDistanceKm: intPtr(30)},
	})
	require.NoError(t, err)
	before, err := f.store.Preferences().Get(ctx, "alice")
	require.NoError(t, err)

	_, err = f.prefs.Handle(ctx, UpdatePreferencesCommand{
		UserID: "alice",
		Update: matching.PreferencesUpdate{MinAge: intPtr(40), MaxAge: intPtr(30)},
	})

	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "minAge", shared.ValidationField(err))

	after, err := f.store.Preferences().Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdatePreferences_FailedFirstUpdatePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.prefs.Handle(ctx, UpdatePreferencesCommand{
		UserID: "alice",
		Update: matching.PreferencesUpdate{MaxDistanceKm: intPtr(0)},
	})
	assert.True(t, shared.IsValidation(err))

	_, err = f.store.Preferences().Get(ctx, "alice")
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// FITNESS SYNC
// ══════════════════════════════════════════════════════════════════════════════

type stubSource struct {
	activities []fitness.Activity
	err        error
}

func (s stubSource) FetchActivities(context.Context, string, time.Time) ([]fitness.Activity, error) {
	return s.activities, s.err
}

type stubGate map[string]bool

func (g stubGate) IsEnabledFor(feature, _ string) bool { return g[feature] }

func TestSyncFitness_RecomputesAndGates(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	source := stubSource{activities: []fitness.Activity{
		{Type: "Run", Distance: 10000, MovingTime: 50 * time.Minute, StartDate: now.Add(-24 * time.Hour)},
		{Type: "Run", Distance: 8000, MovingTime: 40 * time.Minute, StartDate: now.Add(-72 * time.Hour)},
	}}
	h := NewSyncFitnessHandler(source, store.Fitness(), fitness.Threshold{MinWeeklyActivities: 1, MinWeeklyDistance: 5000}, 7,
		stubGate{FeatureRegistrationGate: true})

	res, err := h.Handle(context.Background(), SyncFitnessCommand{UserID: "alice"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.ActivitiesFetched)
	assert.InDelta(t, 18000, res.Metrics.WeeklyDistance, 0.1)
	assert.True(t, res.Eligible)
	assert.True(t, res.GateEnforced)
	require.Len(t, res.Outbox, 1)

	saved, err := store.Fitness().Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Run"}, saved.FavoriteActivities)
}

func TestSyncFitness_ProviderFailure(t *testing.T) {
	store := memory.NewStore()
	h := NewSyncFitnessHandler(stubSource{err: errors.New("boom")}, store.Fitness(), fitness.Threshold{}, 0, nil)

	_, err := h.Handle(context.Background(), SyncFitnessCommand{UserID: "alice"})

	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	_, err = store.Fitness().Get(context.Background(), "alice")
	assert.True(t, shared.IsNotFound(err), "nothing saved on failure")
}
