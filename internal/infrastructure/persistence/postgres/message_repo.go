package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
	"github.com/fitmatch/fitmatch-core/pkg/seal"
)

// MessageRepository implements conversation.Repository. Content is sealed
// before it reaches the table when a Sealer is configured.
type MessageRepository struct {
	conn   *Connection
	sealer *seal.Sealer
}

// NewMessageRepository creates a new MessageRepository. sealer may be nil.
func NewMessageRepository(conn *Connection, sealer *seal.Sealer) *MessageRepository {
	return &MessageRepository{conn: conn, sealer: sealer}
}

var _ conversation.Repository = (*MessageRepository)(nil)

const messageColumns = `id::text, seq, match_id::text, sender_id, content, sent_at, is_read, read_at, is_deleted`

// Append stores msg and assigns its Seq.
func (r *MessageRepository) Append(ctx context.Context, msg *conversation.Message) error {
	content, err := r.sealer.Seal(msg.Content)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	err = r.conn.Pool().QueryRow(ctx, `
		INSERT INTO messages (id, match_id, sender_id, content, sent_at, is_read, is_deleted)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)
		RETURNING seq`,
		msg.ID, msg.MatchID, msg.SenderID, content, msg.SentAt).Scan(&msg.Seq)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NewNotFoundError("postgres", "AppendMessage", "match not found")
		}
		if IsUniqueViolation(err) {
			return shared.NewConflictError("postgres", "AppendMessage", "message id already used")
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetByID returns the message.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*conversation.Message, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, shared.NewNotFoundError("postgres", "GetMessage", "message not found")
	}
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, key)
	m, err := r.scan(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.NewNotFoundError("postgres", "GetMessage", "message not found")
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListByMatch returns one page newest first.
func (r *MessageRepository) ListByMatch(ctx context.Context, matchID string, page shared.Page) ([]*conversation.Message, int, error) {
	key, ok := parseID(matchID)
	if !ok {
		return nil, 0, nil
	}
	var total int
	if err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE match_id = $1`, key).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := r.conn.Pool().Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE match_id = $1
		ORDER BY sent_at DESC, seq DESC
		LIMIT $2 OFFSET $3`, key, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*conversation.Message
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// LastMessage returns the newest message of the match or nil.
func (r *MessageRepository) LastMessage(ctx context.Context, matchID string) (*conversation.Message, error) {
	key, ok := parseID(matchID)
	if !ok {
		return nil, nil
	}
	row := r.conn.Pool().QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE match_id = $1
		ORDER BY sent_at DESC, seq DESC
		LIMIT 1`, key)
	m, err := r.scan(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("last message: %w", err)
	}
	return m, nil
}

// MarkRead flips one message not written by readerID.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, readerID string, at time.Time) (bool, error) {
	key, ok := parseID(messageID)
	if !ok {
		return false, nil
	}
	tag, err := r.conn.Pool().Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $3
		WHERE id = $1 AND sender_id <> $2 AND is_read = FALSE`,
		key, readerID, at)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkConversationRead flips every unread message of the match not written by readerID.
func (r *MessageRepository) MarkConversationRead(ctx context.Context, matchID, readerID string, at time.Time) (int, error) {
	key, ok := parseID(matchID)
	if !ok {
		return 0, nil
	}
	tag, err := r.conn.Pool().Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $3
		WHERE match_id = $1 AND sender_id <> $2 AND is_read = FALSE`,
		key, readerID, at)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountUnread counts across the user's active matches.
func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages msg
		JOIN matches m ON m.id = msg.match_id
		WHERE (m.user1_id = $1 OR m.user2_id = $1)
			AND m.status = 'active'
			AND msg.sender_id <> $1
			AND msg.is_read = FALSE
			AND msg.is_deleted = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// CountUnreadInMatch counts unread messages of one match addressed to userID.
func (r *MessageRepository) CountUnreadInMatch(ctx context.Context, matchID, userID string) (int, error) {
	key, ok := parseID(matchID)
	if !ok {
		return 0, nil
	}
	var n int
	err := r.conn.Pool().QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE match_id = $1
			AND sender_id <> $2
			AND is_read = FALSE
			AND is_deleted = FALSE`, key, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread in match: %w", err)
	}
	return n, nil
}

// SoftDelete replaces the content with the deletion marker.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID string) (bool, error) {
	key, ok := parseID(messageID)
	if !ok {
		return false, nil
	}
	tag, err := r.conn.Pool().Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE, content = $2
		WHERE id = $1 AND is_deleted = FALSE`,
		key, conversation.DeletedMarker)
	if err != nil {
		return false, fmt.Errorf("soft delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountAll returns the number of stored messages.
func (r *MessageRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (r *MessageRepository) scan(row pgx.Row) (*conversation.Message, error) {
	var m conversation.Message
	var content string
	if err := row.Scan(&m.ID, &m.Seq, &m.MatchID, &m.SenderID, &content,
		&m.SentAt, &m.IsRead, &m.ReadAt, &m.IsDeleted); err != nil {
		return nil, err
	}
	opened, err := r.sealer.Open(content)
	if err != nil {
		return nil, err
	}
	m.Content = opened
	return &m, nil
}
