package conversation

import (
	"context"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// Repository persists messages.
type Repository interface {
	// Append stores msg and assigns its Seq.
	Append(ctx context.Context, msg *Message) error

	// GetByID returns the message or shared.ErrNotFound.
	GetByID(ctx context.Context, id string) (*Message, error)

	// ListByMatch returns one page newest first, ordered by (SentAt, Seq)
	// descending, plus the total number of messages in the match.
	ListByMatch(ctx context.Context, matchID string, page shared.Page) ([]*Message, int, error)

	// LastMessage returns the newest message of the match, or nil without error
	// when the match has none.
	LastMessage(ctx context.Context, matchID string) (*Message, error)

	// MarkRead flips one message written by someone other than readerID.
	// It reports whether the message changed.
	MarkRead(ctx context.Context, messageID, readerID string, at time.Time) (bool, error)

	// MarkConversationRead flips every unread message of the match written by
	// someone other than readerID and returns how many changed.
	MarkConversationRead(ctx context.Context, matchID, readerID string, at time.Time) (int, error)

	// CountUnread counts unread, non-deleted messages addressed to userID
	// across the user's active matches.
	CountUnread(ctx context.Context, userID string) (int, error)

	// CountUnreadInMatch is CountUnread restricted to one match.
	CountUnreadInMatch(ctx context.Context, matchID, userID string) (int, error)

	// SoftDelete marks the message deleted and replaces its content.
	// It reports whether the message changed.
	SoftDelete(ctx context.Context, messageID string) (bool, error)

	// CountAll returns the number of stored messages.
	CountAll(ctx context.Context) (int, error)
}
