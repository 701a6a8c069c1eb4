package command

import (
	"context"
	"fmt"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARK AS READ / MARK CONVERSATION AS READ
// Both are idempotent and only flip messages written by the other user.
// A receipt is pushed only when something actually flipped.
// ══════════════════════════════════════════════════════════════════════════════

// MarkAsReadCommand marks one message read.
type MarkAsReadCommand struct {
	MessageID string
	ReaderID  string
}

// MarkAsReadResult reports whether the message flipped.
type MarkAsReadResult struct {
	Message *conversation.Message
	Changed bool
	Outbox  []shared.Delivery
}

// MarkAsReadHandler handles the MarkAsReadCommand.
type MarkAsReadHandler struct {
	gate     *conversation.Gate
	messages conversation.Repository
}

// NewMarkAsReadHandler creates a new MarkAsReadHandler.
func NewMarkAsReadHandler(gate *conversation.Gate, messages conversation.Repository) *MarkAsReadHandler {
	return &MarkAsReadHandler{gate: gate, messages: messages}
}

// Handle executes the command.
func (h *MarkAsReadHandler) Handle(ctx context.Context, cmd MarkAsReadCommand) (*MarkAsReadResult, error) {
	msg, err := h.messages.GetByID(ctx, cmd.MessageID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("conversation", "MarkAsRead", "message not found")
		}
		return nil, fmt.Errorf("mark_as_read: load: %w", err)
	}
	if _, err := h.gate.AuthorizeParticipant(ctx, msg.MatchID, cmd.ReaderID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	changed, err := h.messages.MarkRead(ctx, msg.ID, cmd.ReaderID, now)
	if err != nil {
		return nil, fmt.Errorf("mark_as_read: save: %w", err)
	}

	result := &MarkAsReadResult{Changed: changed}
	if result.Message, err = h.messages.GetByID(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("mark_as_read: reload: %w", err)
	}
	if changed {
		result.Outbox = []shared.Delivery{
			shared.ToUser(msg.SenderID, shared.NewMessageReadEvent(msg.ID, msg.MatchID, cmd.ReaderID, now)),
		}
	}
	return result, nil
}

// MarkConversationAsReadCommand marks every message of a match read.
type MarkConversationAsReadCommand struct {
	MatchID  string
	ReaderID string
}

// MarkConversationAsReadResult reports how many messages flipped.
type MarkConversationAsReadResult struct {
	ReadCount int
	Outbox    []shared.Delivery
}

// MarkConversationAsReadHandler handles the MarkConversationAsReadCommand.
type MarkConversationAsReadHandler struct {
	gate     *conversation.Gate
	messages conversation.Repository
}

// NewMarkConversationAsReadHandler creates a new MarkConversationAsReadHandler.
func NewMarkConversationAsReadHandler(gate *conversation.Gate, messages conversation.Repository) *MarkConversationAsReadHandler {
	return &MarkConversationAsReadHandler{gate: gate, messages: messages}
}

// Handle executes the command.
func (h *MarkConversationAsReadHandler) Handle(ctx context.Context, cmd MarkConversationAsReadCommand) (*MarkConversationAsReadResult, error) {
	m, err := h.gate.AuthorizeParticipant(ctx, cmd.MatchID, cmd.ReaderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	n, err := h.messages.MarkConversationRead(ctx, m.ID, cmd.ReaderID, now)
	if err != nil {
		return nil, fmt.Errorf("mark_conversation_as_read: save: %w", err)
	}

	result := &MarkConversationAsReadResult{ReadCount: n}
	if n > 0 {
		result.Outbox = []shared.Delivery{
			shared.ToUser(m.OtherParticipant(cmd.ReaderID), shared.NewConversationReadEvent(m.ID, cmd.ReaderID, n, now)),
		}
	}
	return result, nil
}
