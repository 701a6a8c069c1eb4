package command

import (
	"context"
	"fmt"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// DeleteMessageCommand soft-deletes a message. Only its sender may do this.
type DeleteMessageCommand struct {
	MessageID   string
	RequesterID string
}

// DeleteMessageResult contains the message after deletion.
type DeleteMessageResult struct {
	Message *conversation.Message

	// Deleted is false when the message was already deleted.
	Deleted bool

	Outbox []shared.Delivery
}

// DeleteMessageHandler handles the DeleteMessageCommand.
type DeleteMessageHandler struct {
	gate     *conversation.Gate
	messages conversation.Repository
}

// NewDeleteMessageHandler creates a new DeleteMessageHandler.
func NewDeleteMessageHandler(gate *conversation.Gate, messages conversation.Repository) *DeleteMessageHandler {
	return &DeleteMessageHandler{gate: gate, messages: messages}
}

// Handle executes the command.
func (h *DeleteMessageHandler) Handle(ctx context.Context, cmd DeleteMessageCommand) (*DeleteMessageResult, error) {
	msg, err := h.messages.GetByID(ctx, cmd.MessageID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("conversation", "DeleteMessage", "message not found")
		}
		return nil, fmt.Errorf("delete_message: load: %w", err)
	}
	if err := h.gate.AuthorizeSender(msg, cmd.RequesterID); err != nil {
		return nil, err
	}

	changed, err := h.messages.SoftDelete(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("delete_message: save: %w", err)
	}

	result := &DeleteMessageResult{Deleted: changed}
	if result.Message, err = h.messages.GetByID(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("delete_message: reload: %w", err)
	}
	if changed {
		result.Outbox = []shared.Delivery{
			shared.ToMatchRoom(msg.MatchID, shared.NewMessageDeletedEvent(msg.ID, msg.MatchID, cmd.RequesterID)),
		}
	}
	return result, nil
}
