// Package conversation contains messages exchanged inside a match and the
// gate that authorizes every message operation against the match ledger.
package conversation

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

const (
	// MaxContentLength is the longest accepted message, in characters.
	MaxContentLength = 5000

	// DeletedMarker replaces the content of a soft-deleted message.
	DeletedMarker = "[message deleted]"
)

// Message is one chat line. It belongs to exactly one match.
type Message struct {
	ID      string `json:"id"`
	MatchID string `json:"matchId"`

	// Seq is assigned by the store and breaks SentAt ties.
	Seq int64 `json:"-"`

	SenderID  string     `json:"senderId"`
	Content   string     `json:"content"`
	SentAt    time.Time  `json:"sentAt"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	IsDeleted bool       `json:"isDeleted"`
}

// NormalizeContent trims content and checks its length.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", shared.NewValidationError("conversation", "NormalizeContent", "content", "message content cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxContentLength {
		return "", shared.NewValidationError("conversation", "NormalizeContent", "content", "message content exceeds 5000 characters")
	}
	return trimmed, nil
}

// NewMessage builds an unread message with normalized content.
func NewMessage(id, matchID, senderID, content string, now time.Time) (*Message, error) {
	normalized, err := NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:       id,
		MatchID:  matchID,
		SenderID: senderID,
		Content:  normalized,
		SentAt:   now,
	}, nil
}

// MarkRead flips the message to read for readerID. Senders never mark their
// own messages; an already-read message is left alone. Reports whether it flipped.
func (m *Message) MarkRead(readerID string, at time.Time) bool {
	if m.IsRead || m.SenderID == readerID {
		return false
	}
	m.IsRead = true
	m.ReadAt = &at
	return true
}

// SoftDelete blanks the content. Reports whether anything changed.
func (m *Message) SoftDelete() bool {
	if m.IsDeleted {
		return false
	}
	m.IsDeleted = true
	m.Content = DeletedMarker
	return true
}

// IsUnreadFor reports whether the message counts as unread for userID.
func (m *Message) IsUnreadFor(userID string) bool {
	return !m.IsRead && !m.IsDeleted && m.SenderID != userID
}
