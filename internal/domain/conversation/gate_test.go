package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/internal/infrastructure/persistence/memory"
)

func newGateWithMatch(t *testing.T) (*conversation.Gate, *memory.MatchRepository, *matching.Match) {
	t.Helper()
	matches := memory.NewStore().Matches()
	m, err := matching.NewMatch("match-1", "alice", "bob", 80, time.Now())
	require.NoError(t, err)
	require.NoError(t, matches.Create(context.Background(), m))
	return conversation.NewGate(matches), matches, m
}

func TestGate_AuthorizeSend(t *testing.T) {
	ctx := context.Background()
	gate, _, m := newGateWithMatch(t)

	got, err := gate.AuthorizeSend(ctx, "bob", "alice", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = gate.AuthorizeSend(ctx, "alice", "carol", m.ID)
	assert.Equal(t, shared.ReasonNotMatched, shared.AuthorizationReason(err))

	_, err = gate.AuthorizeSend(ctx, "alice", "bob", "another-match")
	assert.Equal(t, shared.ReasonNotMatched, shared.AuthorizationReason(err), "match id must agree with the pair")

	_, err = gate.AuthorizeSend(ctx, "alice", "alice", m.ID)
	assert.True(t, shared.IsValidation(err))
}

func TestGate_AuthorizeSendAfterArchive(t *testing.T) {
	ctx := context.Background()
	gate, matches, m := newGateWithMatch(t)

	_, err := matches.Archive(ctx, m.ID, time.Now())
	require.NoError(t, err)

	_, err = gate.AuthorizeSend(ctx, "alice", "bob", m.ID)

	require.Error(t, err)
	assert.True(t, shared.IsAuthorization(err))
	assert.Equal(t, shared.ReasonNotMatched, shared.AuthorizationReason(err))
	assert.Contains(t, err.Error(), "not matched")
}

func TestGate_AuthorizeParticipant(t *testing.T) {
	ctx := context.Background()
	gate, matches, m := newGateWithMatch(t)

	_, err := gate.AuthorizeParticipant(ctx, m.ID, "alice")
	assert.NoError(t, err)

	_, err = gate.AuthorizeParticipant(ctx, m.ID, "mallory")
	assert.Equal(t, shared.ReasonNotParticipant, shared.AuthorizationReason(err))

	_, err = gate.AuthorizeParticipant(ctx, "missing", "alice")
	assert.True(t, shared.IsNotFound(err))

	_, err = matches.Archive(ctx, m.ID, time.Now())
	require.NoError(t, err)

	_, err = gate.AuthorizeParticipant(ctx, m.ID, "bob")
	assert.NoError(t, err, "history of archived matches stays readable")

	_, err = gate.AuthorizeActiveParticipant(ctx, m.ID, "bob")
	assert.Equal(t, shared.ReasonNotMatched, shared.AuthorizationReason(err))
}

func TestGate_AuthorizeSender(t *testing.T) {
	gate, _, _ := newGateWithMatch(t)
	msg := &conversation.Message{ID: "m1", SenderID: "alice"}

	assert.NoError(t, gate.AuthorizeSender(msg, "alice"))

	err := gate.AuthorizeSender(msg, "bob")
	assert.Equal(t, shared.ReasonNotSender, shared.AuthorizationReason(err))
}
