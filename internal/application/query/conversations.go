package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MESSAGES QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetMessagesQuery asks for one page of a conversation.
type GetMessagesQuery struct {
	MatchID     string
	RequesterID string
	Page        int
	Limit       int
}

// GetMessagesResult is one page, newest first.
type GetMessagesResult struct {
	Messages []*conversation.Message `json:"messages"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	Limit    int                     `json:"limit"`
	HasMore  bool                    `json:"hasMore"`
}

// GetMessagesHandler handles the query.
type GetMessagesHandler struct {
	gate     *conversation.Gate
	messages conversation.Repository
}

// NewGetMessagesHandler creates a new handler.
func NewGetMessagesHandler(gate *conversation.Gate, messages conversation.Repository) *GetMessagesHandler {
	return &GetMessagesHandler{gate: gate, messages: messages}
}

// Handle executes the query.
func (h *GetMessagesHandler) Handle(ctx context.Context, q GetMessagesQuery) (*GetMessagesResult, error) {
	m, err := h.gate.AuthorizeParticipant(ctx, q.MatchID, q.RequesterID)
	if err != nil {
		return nil, err
	}

	page := shared.NewPage(q.Page, q.Limit)
	list, total, err := h.messages.ListByMatch(ctx, m.ID, page)
	if err != nil {
		return nil, fmt.Errorf("get_messages: list: %w", err)
	}
	return &GetMessagesResult{
		Messages: list,
		Total:    total,
		Page:     page.Number,
		Limit:    page.Limit,
		HasMore:  page.Offset()+len(list) < total,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET CONVERSATIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// conversationFanOut bounds concurrent per-match lookups.
const conversationFanOut = 8

// GetConversationsQuery asks for the user's inbox.
type GetConversationsQuery struct {
	UserID string
}

// ConversationDTO summarizes one active match.
type ConversationDTO struct {
	MatchID        string                `json:"matchId"`
	OtherUser      *matching.UserSummary `json:"otherUser"`
	LastMessage    *conversation.Message `json:"lastMessage"`
	UnreadCount    int                   `json:"unreadCount"`
	LastActivityAt time.Time             `json:"lastActivityAt"`
}

// GetConversationsHandler handles the query.
type GetConversationsHandler struct {
	matches  matching.MatchRepository
	messages conversation.Repository
	users    matching.UserDirectory
}

// NewGetConversationsHandler creates a new handler.
func NewGetConversationsHandler(matches matching.MatchRepository, messages conversation.Repository, users matching.UserDirectory) *GetConversationsHandler {
	return &GetConversationsHandler{matches: matches, messages: messages, users: users}
}

// Handle returns one entry per active match sorted by last activity, newest first.
// Last activity is the last message time, or the match time without messages.
func (h *GetConversationsHandler) Handle(ctx context.Context, q GetConversationsQuery) ([]ConversationDTO, error) {
	if q.UserID == "" {
		return nil, shared.WrapError("conversation", "GetConversations", shared.ErrValidation, "invalid query", errors.New("user_id is required"))
	}

	active, err := h.matches.ListActiveByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_conversations: matches: %w", err)
	}

	others := make([]string, 0, len(active))
	for _, m := range active {
		others = append(others, m.OtherParticipant(q.UserID))
	}
	profiles, err := h.users.GetProfiles(ctx, others)
	if err != nil {
		return nil, fmt.Errorf("get_conversations: profiles: %w", err)
	}

	out := make([]ConversationDTO, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conversationFanOut)
	for i, m := range active {
		i, m := i, m
		g.Go(func() error {
			last, err := h.messages.LastMessage(gctx, m.ID)
			if err != nil {
				return fmt.Errorf("last message of %s: %w", m.ID, err)
			}
			unread, err := h.messages.CountUnreadInMatch(gctx, m.ID, q.UserID)
			if err != nil {
				return fmt.Errorf("unread of %s: %w", m.ID, err)
			}

			dto := ConversationDTO{
				MatchID:        m.ID,
				LastMessage:    last,
				UnreadCount:    unread,
				LastActivityAt: m.MatchedAt,
			}
			if last != nil {
				dto.LastActivityAt = last.SentAt
			}
			if p, ok := profiles[m.OtherParticipant(q.UserID)]; ok {
				s := p.Summary()
				dto.OtherUser = &s
			}
			out[i] = dto
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("get_conversations: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].LastActivityAt.After(out[j].LastActivityAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET UNREAD COUNT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetUnreadCountQuery asks for the user's total unread count.
type GetUnreadCountQuery struct {
	UserID string
}

// GetUnreadCountHandler handles the query.
type GetUnreadCountHandler struct {
	messages conversation.Repository
}

// NewGetUnreadCountHandler creates a new handler.
func NewGetUnreadCountHandler(messages conversation.Repository) *GetUnreadCountHandler {
	return &GetUnreadCountHandler{messages: messages}
}

// Handle counts unread messages from the other side across active matches.
func (h *GetUnreadCountHandler) Handle(ctx context.Context, q GetUnreadCountQuery) (int, error) {
	if q.UserID == "" {
		return 0, shared.WrapError("conversation", "GetUnreadCount", shared.ErrValidation, "invalid query", errors.New("user_id is required"))
	}
	n, err := h.messages.CountUnread(ctx, q.UserID)
	if err != nil {
		return 0, fmt.Errorf("get_unread_count: %w", err)
	}
	return n, nil
}
