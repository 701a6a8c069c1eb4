package conversation

import (
	"context"
	"fmt"

	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// Gate authorizes message operations against the match ledger.
type Gate struct {
	matches matching.MatchRepository
}

// NewGate creates a Gate.
func NewGate(matches matching.MatchRepository) *Gate {
	return &Gate{matches: matches}
}

// AuthorizeSend requires an active match between sender and recipient whose
// id is matchID. Archived matches count as not matched.
func (g *Gate) AuthorizeSend(ctx context.Context, senderID, recipientID, matchID string) (*matching.Match, error) {
	const op = "AuthorizeSend"
	if senderID == "" || recipientID == "" || senderID == recipientID {
		return nil, shared.NewValidationError("conversation", op, "recipientId", "recipient must be another user")
	}
	if matchID == "" {
		return nil, shared.NewValidationError("conversation", op, "matchId", "match id is required")
	}

	m, err := g.matches.FindByPair(ctx, senderID, recipientID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, notMatched(op)
		}
		return nil, fmt.Errorf("find match by pair: %w", err)
	}
	if !m.IsActive() || m.ID != matchID {
		return nil, notMatched(op)
	}
	return m, nil
}

// AuthorizeParticipant loads the match and requires userID to be part of it.
// Archived matches pass: their history stays readable.
func (g *Gate) AuthorizeParticipant(ctx context.Context, matchID, userID string) (*matching.Match, error) {
	const op = "AuthorizeParticipant"
	m, err := g.matches.GetByID(ctx, matchID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("conversation", op, "match not found")
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	if !m.HasParticipant(userID) {
		return nil, shared.NewAuthorizationError("conversation", op, shared.ReasonNotParticipant, "not a participant of this match")
	}
	return m, nil
}

// AuthorizeActiveParticipant is AuthorizeParticipant plus an active match.
// Used for live features such as typing indicators.
func (g *Gate) AuthorizeActiveParticipant(ctx context.Context, matchID, userID string) (*matching.Match, error) {
	m, err := g.AuthorizeParticipant(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, notMatched("AuthorizeActiveParticipant")
	}
	return m, nil
}

// AuthorizeSender requires userID to be the author of msg.
func (g *Gate) AuthorizeSender(msg *Message, userID string) error {
	if msg.SenderID != userID {
		return shared.NewAuthorizationError("conversation", "AuthorizeSender", shared.ReasonNotSender, "only the sender can do this")
	}
	return nil
}

func notMatched(op string) error {
	return shared.NewAuthorizationError("conversation", op, shared.ReasonNotMatched, "not matched")
}
