package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// MessageRepository implements conversation.Repository.
type MessageRepository struct {
	s *Store
}

// Append implements conversation.Repository.
func (r *MessageRepository) Append(_ context.Context, msg *conversation.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.matches[msg.MatchID]; !ok {
		return shared.NewNotFoundError("memory", "AppendMessage", "match not found")
	}
	r.s.seq++
	msg.Seq = r.s.seq
	r.s.messages[msg.ID] = copyMessage(*msg)
	return nil
}

// GetByID implements conversation.Repository.
func (r *MessageRepository) GetByID(_ context.Context, id string) (*conversation.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, shared.NewNotFoundError("memory", "GetMessage", "message not found")
	}
	out := copyMessage(m)
	return &out, nil
}

// ListByMatch implements conversation.Repository.
func (r *MessageRepository) ListByMatch(_ context.Context, matchID string, page shared.Page) ([]*conversation.Message, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.s.matchMessagesLocked(matchID)
	total := len(all)
	start := page.Offset()
	if start >= total {
		return []*conversation.Message{}, total, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// LastMessage implements conversation.Repository.
func (r *MessageRepository) LastMessage(_ context.Context, matchID string) (*conversation.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := r.s.matchMessagesLocked(matchID)
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// MarkRead implements conversation.Repository.
func (r *MessageRepository) MarkRead(_ context.Context, messageID, readerID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[messageID]
	if !ok {
		return false, shared.NewNotFoundError("memory", "MarkRead", "message not found")
	}
	changed := m.MarkRead(readerID, at)
	r.s.messages[messageID] = m
	return changed, nil
}

// MarkConversationRead implements conversation.Repository.
func (r *MessageRepository) MarkConversationRead(_ context.Context, matchID, readerID string, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for id, m := range r.s.messages {
		if m.MatchID != matchID {
			continue
		}
		if m.MarkRead(readerID, at) {
			r.s.messages[id] = m
			n++
		}
	}
	return n, nil
}

// CountUnread implements conversation.Repository.
func (r *MessageRepository) CountUnread(_ context.Context, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, m := range r.s.messages {
		match, ok := r.s.matches[m.MatchID]
		if !ok || !match.IsActive() || !match.HasParticipant(userID) {
			continue
		}
		if m.IsUnreadFor(userID) {
			n++
		}
	}
	return n, nil
}

// CountUnreadInMatch implements conversation.Repository.
func (r *MessageRepository) CountUnreadInMatch(_ context.Context, matchID, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, m := range r.s.messages {
		if m.MatchID == matchID && m.IsUnreadFor(userID) {
			n++
		}
	}
	return n, nil
}

// SoftDelete implements conversation.Repository.
func (r *MessageRepository) SoftDelete(_ context.Context, messageID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[messageID]
	if !ok {
		return false, shared.NewNotFoundError("memory", "SoftDelete", "message not found")
	}
	changed := m.SoftDelete()
	r.s.messages[messageID] = m
	return changed, nil
}

// CountAll implements conversation.Repository.
func (r *MessageRepository) CountAll(_ context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.messages), nil
}

// matchMessagesLocked returns copies of the match's messages, newest first.
func (s *Store) matchMessagesLocked(matchID string) []*conversation.Message {
	var out []*conversation.Message
	for _, m := range s.messages {
		if m.MatchID == matchID {
			c := copyMessage(m)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

func copyMessage(m conversation.Message) conversation.Message {
	out := m
	if m.ReadAt != nil {
		at := *m.ReadAt
		out.ReadAt = &at
	}
	return out
}
