package matching

import (
	"strings"
	"time"

	"github.com/fitmatch/fitmatch-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the lifecycle state of a match.
type Status string

const (
	// StatusActive allows messaging.
	StatusActive Status = "active"

	// StatusArchived is terminal.
	StatusArchived Status = "archived"
)

// IsValid checks the status value.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusArchived
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && next == StatusArchived
}

// ══════════════════════════════════════════════════════════════════════════════
// PAIR
// ══════════════════════════════════════════════════════════════════════════════

// Pair is an unordered pair of user ids stored in a canonical order.
type Pair struct {
	Low  string
	High string
}

// NormalizePair orders a and b so that (a,b) and (b,a) give the same key.
func NormalizePair(a, b string) Pair {
	if strings.Compare(a, b) <= 0 {
		return Pair{Low: a, High: b}
	}
	return Pair{Low: b, High: a}
}

// Key returns a string form usable as a map key.
func (p Pair) Key() string {
	return p.Low + "|" + p.High
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH
// ══════════════════════════════════════════════════════════════════════════════

// Match links two users who may message each other while it is active.
type Match struct {
	ID      string `json:"id"`
	User1ID string `json:"user1Id"`
	User2ID string `json:"user2Id"`

	// CompatibilityScore is snapshotted at creation and never recomputed.
	CompatibilityScore int `json:"compatibilityScore"`

	Status     Status     `json:"status"`
	MatchedAt  time.Time  `json:"matchedAt"`
	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
}

// NewMatch validates its input and returns an active match.
// User1ID is the initiating user.
func NewMatch(id, initiatorID, targetID string, score int, now time.Time) (*Match, error) {
	const op = "NewMatch"
	if strings.TrimSpace(initiatorID) == "" {
		return nil, shared.NewValidationError("matching", op, "userId", "user id is required")
	}
	if strings.TrimSpace(targetID) == "" {
		return nil, shared.NewValidationError("matching", op, "targetUserId", "target user id is required")
	}
	if initiatorID == targetID {
		return nil, shared.NewValidationError("matching", op, "targetUserId", "cannot match with yourself")
	}
	if score < MinAllowedScore || score > MaxAllowedScore {
		return nil, shared.NewValidationError("matching", op, "compatibilityScore", "compatibilityScore must be between 0 and 100")
	}

	return &Match{
		ID:                 id,
		User1ID:            initiatorID,
		User2ID:            targetID,
		CompatibilityScore: score,
		Status:             StatusActive,
		MatchedAt:          now,
	}, nil
}

// Pair returns the normalized participant pair.
func (m *Match) Pair() Pair {
	return NormalizePair(m.User1ID, m.User2ID)
}

// IsActive reports whether messaging is allowed.
func (m *Match) IsActive() bool {
	return m.Status == StatusActive
}

// HasParticipant reports whether userID is one of the two users.
func (m *Match) HasParticipant(userID string) bool {
	return userID != "" && (m.User1ID == userID || m.User2ID == userID)
}

// OtherParticipant returns the user on the other side of userID.
// It returns "" when userID is not a participant.
func (m *Match) OtherParticipant(userID string) string {
	switch userID {
	case m.User1ID:
		return m.User2ID
	case m.User2ID:
		return m.User1ID
	default:
		return ""
	}
}

// Archive moves the match to archived. It returns false when the match
// was already archived; that case is not an error.
func (m *Match) Archive(now time.Time) bool {
	if !m.Status.CanTransitionTo(StatusArchived) {
		return false
	}
	m.Status = StatusArchived
	m.ArchivedAt = &now
	return true
}
