// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each is pushed to connected clients under its string value.
const (
	// Match events
	EventMatchCreated  EventType = "match.created"
	EventMatchArchived EventType = "match.archived"

	// Message events
	EventMessageSent       EventType = "message.new"
	EventMessageRead       EventType = "message.read"
	EventConversationRead  EventType = "conversation.read"
	EventMessageDeleted    EventType = "message.deleted"
	EventTypingIndicator   EventType = "conversation.typing"
	EventFitnessRecomputed EventType = "fitness.recomputed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Match Events
// ═══════════════════════════════════════════════════════════════════════════

// MatchCreatedEvent is emitted when two users become matched.
type MatchCreatedEvent struct {
	BaseEvent
	MatchID            string    `json:"match_id"`
	User1ID            string    `json:"user1_id"`
	User2ID            string    `json:"user2_id"`
	CompatibilityScore int       `json:"compatibility_score"`
	MatchedAt          time.Time `json:"matched_at"`
}

// Payload implements Event interface.
func (e MatchCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id":            e.MatchID,
		"user1_id":            e.User1ID,
		"user2_id":            e.User2ID,
		"compatibility_score": e.CompatibilityScore,
		"matched_at":          e.MatchedAt.Format(time.RFC3339),
	}
}

// NewMatchCreatedEvent creates a new MatchCreatedEvent.
func NewMatchCreatedEvent(matchID, user1ID, user2ID string, score int, matchedAt time.Time) MatchCreatedEvent {
	return MatchCreatedEvent{
		BaseEvent:          NewBaseEvent(EventMatchCreated, matchID),
		MatchID:            matchID,
		User1ID:            user1ID,
		User2ID:            user2ID,
		CompatibilityScore: score,
		MatchedAt:          matchedAt,
	}
}

// MatchArchivedEvent is emitted on the active -> archived transition.
type MatchArchivedEvent struct {
	BaseEvent
	MatchID    string `json:"match_id"`
	ArchivedBy string `json:"archived_by"`
}

// Payload implements Event interface.
func (e MatchArchivedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id":    e.MatchID,
		"archived_by": e.ArchivedBy,
	}
}

// NewMatchArchivedEvent creates a new MatchArchivedEvent.
func NewMatchArchivedEvent(matchID, archivedBy string) MatchArchivedEvent {
	return MatchArchivedEvent{
		BaseEvent:  NewBaseEvent(EventMatchArchived, matchID),
		MatchID:    matchID,
		ArchivedBy: archivedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Message Events
// ═══════════════════════════════════════════════════════════════════════════

// MessageSentEvent carries a freshly persisted message.
type MessageSentEvent struct {
	BaseEvent
	MessageID string    `json:"message_id"`
	MatchID   string    `json:"match_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	SentAt    time.Time `json:"sent_at"`
}

// Payload implements Event interface.
func (e MessageSentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"match_id":   e.MatchID,
		"sender_id":  e.SenderID,
		"content":    e.Content,
		"sent_at":    e.SentAt.Format(time.RFC3339Nano),
		"is_read":    false,
	}
}

// NewMessageSentEvent creates a new MessageSentEvent.
func NewMessageSentEvent(messageID, matchID, senderID, content string, sentAt time.Time) MessageSentEvent {
	return MessageSentEvent{
		BaseEvent: NewBaseEvent(EventMessageSent, matchID),
		MessageID: messageID,
		MatchID:   matchID,
		SenderID:  senderID,
		Content:   content,
		SentAt:    sentAt,
	}
}

// MessageReadEvent is a read receipt for a single message.
type MessageReadEvent struct {
	BaseEvent
	MessageID string    `json:"message_id"`
	MatchID   string    `json:"match_id"`
	ReaderID  string    `json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}

// Payload implements Event interface.
func (e MessageReadEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"match_id":   e.MatchID,
		"reader_id":  e.ReaderID,
		"read_at":    e.ReadAt.Format(time.RFC3339Nano),
	}
}

// NewMessageReadEvent creates a new MessageReadEvent.
func NewMessageReadEvent(messageID, matchID, readerID string, readAt time.Time) MessageReadEvent {
	return MessageReadEvent{
		BaseEvent: NewBaseEvent(EventMessageRead, matchID),
		MessageID: messageID,
		MatchID:   matchID,
		ReaderID:  readerID,
		ReadAt:    readAt,
	}
}

// ConversationReadEvent is a read receipt covering a whole conversation.
type ConversationReadEvent struct {
	BaseEvent
	MatchID   string    `json:"match_id"`
	ReaderID  string    `json:"reader_id"`
	ReadCount int       `json:"read_count"`
	ReadAt    time.Time `json:"read_at"`
}

// Payload implements Event interface.
func (e ConversationReadEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id":   e.MatchID,
		"reader_id":  e.ReaderID,
		"read_count": e.ReadCount,
		"read_at":    e.ReadAt.Format(time.RFC3339Nano),
	}
}

// NewConversationReadEvent creates a new ConversationReadEvent.
func NewConversationReadEvent(matchID, readerID string, count int, readAt time.Time) ConversationReadEvent {
	return ConversationReadEvent{
		BaseEvent: NewBaseEvent(EventConversationRead, matchID),
		MatchID:   matchID,
		ReaderID:  readerID,
		ReadCount: count,
		ReadAt:    readAt,
	}
}

// MessageDeletedEvent is emitted when a sender soft-deletes a message.
type MessageDeletedEvent struct {
	BaseEvent
	MessageID string `json:"message_id"`
	MatchID   string `json:"match_id"`
	DeletedBy string `json:"deleted_by"`
}

// Payload implements Event interface.
func (e MessageDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"match_id":   e.MatchID,
		"deleted_by": e.DeletedBy,
	}
}

// NewMessageDeletedEvent creates a new MessageDeletedEvent.
func NewMessageDeletedEvent(messageID, matchID, deletedBy string) MessageDeletedEvent {
	return MessageDeletedEvent{
		BaseEvent: NewBaseEvent(EventMessageDeleted, matchID),
		MessageID: messageID,
		MatchID:   matchID,
		DeletedBy: deletedBy,
	}
}

// TypingEvent tells the room that a participant is composing a message.
type TypingEvent struct {
	BaseEvent
	MatchID  string `json:"match_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// Payload implements Event interface.
func (e TypingEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"match_id":  e.MatchID,
		"user_id":   e.UserID,
		"is_typing": e.IsTyping,
	}
}

// NewTypingEvent creates a new TypingEvent.
func NewTypingEvent(matchID, userID string, isTyping bool) TypingEvent {
	return TypingEvent{
		BaseEvent: NewBaseEvent(EventTypingIndicator, matchID),
		MatchID:   matchID,
		UserID:    userID,
		IsTyping:  isTyping,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Fitness Events
// ═══════════════════════════════════════════════════════════════════════════

// FitnessRecomputedEvent is emitted after a metrics snapshot is rebuilt.
type FitnessRecomputedEvent struct {
	BaseEvent
	UserID           string  `json:"user_id"`
	WeeklyDistance   float64 `json:"weekly_distance"`
	WeeklyActivities int     `json:"weekly_activities"`
	Eligible         bool    `json:"eligible"`
}

// Payload implements Event interface.
func (e FitnessRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"weekly_distance":   e.WeeklyDistance,
		"weekly_activities": e.WeeklyActivities,
		"eligible":          e.Eligible,
	}
}

// NewFitnessRecomputedEvent creates a new FitnessRecomputedEvent.
func NewFitnessRecomputedEvent(userID string, weeklyDistance float64, weeklyActivities int, eligible bool) FitnessRecomputedEvent {
	return FitnessRecomputedEvent{
		BaseEvent:        NewBaseEvent(EventFitnessRecomputed, userID),
		UserID:           userID,
		WeeklyDistance:   weeklyDistance,
		WeeklyActivities: weeklyActivities,
		Eligible:         eligible,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Delivery (outbox entries returned by application handlers)
// ═══════════════════════════════════════════════════════════════════════════

// Audience selects how a delivery is routed by the push channel.
type Audience string

const (
	// AudienceUser targets every connection of one user.
	AudienceUser Audience = "user"

	// AudienceMatchRoom targets every connection joined to a match room.
	AudienceMatchRoom Audience = "match_room"
)

// Delivery is one event addressed to one audience. Handlers return these
// instead of pushing, so persistence never depends on push success.
type Delivery struct {
	Audience Audience
	Target   string
	Event    Event
}

// ToUser addresses event to userID.
func ToUser(userID string, event Event) Delivery {
	return Delivery{Audience: AudienceUser, Target: userID, Event: event}
}

// ToMatchRoom addresses event to the room of matchID.
func ToMatchRoom(matchID string, event Event) Delivery {
	return Delivery{Audience: AudienceMatchRoom, Target: matchID, Event: event}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
