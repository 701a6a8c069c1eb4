package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"trims", "  hi there \n", "hi there", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\n ", "", true},
		{"exactly max", strings.Repeat("a", MaxContentLength), strings.Repeat("a", MaxContentLength), false},
		{"over max", strings.Repeat("a", MaxContentLength+1), "", true},
		{"multibyte counts characters", strings.Repeat("é", MaxContentLength), strings.Repeat("é", MaxContentLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeContent(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, shared.IsValidation(err))
				assert.Equal(t, "content", shared.ValidationField(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage_MarkRead(t *testing.T) {
	now := time.Now()
	msg, err := NewMessage("m1", "match1", "alice", "hello", now)
	require.NoError(t, err)

	assert.False(t, msg.MarkRead("alice", now), "sender cannot read own message")
	assert.False(t, msg.IsRead)

	assert.True(t, msg.MarkRead("bob", now))
	assert.True(t, msg.IsRead)
	require.NotNil(t, msg.ReadAt)

	assert.False(t, msg.MarkRead("bob", now.Add(time.Minute)), "second read is a no-op")
	assert.Equal(t, now, *msg.ReadAt)
}

func TestMessage_SoftDelete(t *testing.T) {
	msg, err := NewMessage("m1", "match1", "alice", "secret", time.Now())
	require.NoError(t, err)

	assert.True(t, msg.IsUnreadFor("bob"))
	assert.True(t, msg.SoftDelete())
	assert.Equal(t, DeletedMarker, msg.Content)
	assert.True(t, msg.IsDeleted)
	assert.False(t, msg.IsUnreadFor("bob"), "deleted messages are not unread")

	assert.False(t, msg.SoftDelete())
}
