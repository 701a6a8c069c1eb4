package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

func TestNewMatch(t *testing.T) {
	now := time.Now().UTC()

	m, err := NewMatch("m1", "alice", "bob", 74, now)

	require.NoError(t, err)
	assert.Equal(t, StatusActive, m.Status)
	assert.Equal(t, now, m.MatchedAt)
	assert.Nil(t, m.ArchivedAt)
	assert.Equal(t, Pair{Low: "alice", High: "bob"}, m.Pair())
}

func TestNewMatch_Validation(t *testing.T) {
	tests := []struct {
		name          string
		from, to      string
		score         int
		expectedField string
	}{
		{"missing initiator", "", "bob", 50, "userId"},
		{"missing target", "alice", " ", 50, "targetUserId"},
		{"self match", "alice", "alice", 50, "targetUserId"},
		{"score too high", "alice", "bob", 101, "compatibilityScore"},
		{"negative score", "alice", "bob", -1, "compatibilityScore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatch("m1", tt.from, tt.to, tt.score, time.Now())

			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
			assert.Equal(t, tt.expectedField, shared.ValidationField(err))
		})
	}
}

func TestNormalizePair_OrderIndependent(t *testing.T) {
	assert.Equal(t, NormalizePair("x", "y"), NormalizePair("y", "x"))
	assert.Equal(t, NormalizePair("x", "y").Key(), NormalizePair("y", "x").Key())
	assert.NotEqual(t, NormalizePair("x", "y").Key(), NormalizePair("x", "z").Key())
}

func TestMatch_Participants(t *testing.T) {
	m, err := NewMatch("m1", "alice", "bob", 60, time.Now())
	require.NoError(t, err)

	assert.True(t, m.HasParticipant("alice"))
	assert.True(t, m.HasParticipant("bob"))
	assert.False(t, m.HasParticipant("carol"))
	assert.False(t, m.HasParticipant(""))

	assert.Equal(t, "bob", m.OtherParticipant("alice"))
	assert.Equal(t, "alice", m.OtherParticipant("bob"))
	assert.Equal(t, "", m.OtherParticipant("carol"))
}

func TestMatch_ArchiveIsTerminalAndIdempotent(t *testing.T) {
	m, err := NewMatch("m1", "alice", "bob", 60, time.Now())
	require.NoError(t, err)
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, m.Archive(first))
	assert.Equal(t, StatusArchived, m.Status)
	require.NotNil(t, m.ArchivedAt)
	assert.Equal(t, first, *m.ArchivedAt)

	assert.False(t, m.Archive(first.Add(time.Hour)))
	assert.Equal(t, StatusArchived, m.Status)
	assert.Equal(t, first, *m.ArchivedAt, "re-archive keeps the original timestamp")

	assert.False(t, StatusArchived.CanTransitionTo(StatusActive))
}
