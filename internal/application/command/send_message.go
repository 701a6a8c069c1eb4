package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND MESSAGE COMMAND
// Messaging requires an active match between sender and recipient.
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageCommand contains the data to send a message.
type SendMessageCommand struct {
	SenderID    string
	RecipientID string
	MatchID     string
	Content     string
}

// Validate checks the content before the store is touched.
func (c SendMessageCommand) Validate() error {
	_, err := conversation.NormalizeContent(c.Content)
	return err
}

// SendMessageResult contains the persisted message.
type SendMessageResult struct {
	Message *conversation.Message
	Outbox  []shared.Delivery
}

// SendMessageHandler handles the SendMessageCommand.
type SendMessageHandler struct {
	gate     *conversation.Gate
	messages conversation.Repository
}

// NewSendMessageHandler creates a new SendMessageHandler.
func NewSendMessageHandler(gate *conversation.Gate, messages conversation.Repository) *SendMessageHandler {
	return &SendMessageHandler{gate: gate, messages: messages}
}

// Handle executes the send message command.
func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*SendMessageResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	m, err := h.gate.AuthorizeSend(ctx, cmd.SenderID, cmd.RecipientID, cmd.MatchID)
	if err != nil {
		return nil, err
	}

	msg, err := conversation.NewMessage(uuid.NewString(), m.ID, cmd.SenderID, cmd.Content, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := h.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("send_message: save: %w", err)
	}

	event := shared.NewMessageSentEvent(msg.ID, msg.MatchID, msg.SenderID, msg.Content, msg.SentAt)
	return &SendMessageResult{
		Message: msg,
		Outbox: []shared.Delivery{
			shared.ToUser(cmd.RecipientID, event),
			shared.ToMatchRoom(msg.MatchID, event),
		},
	}, nil
}
