package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fitmatch/fitmatch-core/internal/application/command"
	"github.com/fitmatch/fitmatch-core/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONVERSATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type sendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	MatchID     string `json:"matchId"`
	Content     string `json:"content"`
}

// handleSendMessage handles POST /messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.SendMessage.Handle(r.Context(), command.SendMessageCommand{
		SenderID:    userIDFrom(r.Context()),
		RecipientID: req.RecipientID,
		MatchID:     req.MatchID,
		Content:     req.Content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(r.Context(), result.Outbox)
	writeJSON(w, r, http.StatusCreated, result.Message)
}

// handleGetConversations handles GET /messages/conversations
func (s *Server) handleGetConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.deps.GetConversations.Handle(r.Context(), query.GetConversationsQuery{
		UserID: userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, convs)
}

// handleGetUnreadCount handles GET /messages/unread-count
func (s *Server) handleGetUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.GetUnreadCount.Handle(r.Context(), query.GetUnreadCountQuery{
		UserID: userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"count": n})
}

// handleGetMessages handles GET /messages/{matchId}?page=&limit=
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.GetMessages.Handle(r.Context(), query.GetMessagesQuery{
		MatchID:     mux.Vars(r)["matchId"],
		RequesterID: userIDFrom(r.Context()),
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleMarkAsRead handles PUT /messages/{messageId}/read
func (s *Server) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.MarkAsRead.Handle(r.Context(), command.MarkAsReadCommand{
		MessageID: mux.Vars(r)["messageId"],
		ReaderID:  userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(r.Context(), result.Outbox)
	writeJSON(w, r, http.StatusOK, result.Message)
}

// handleMarkConversationAsRead handles PUT /messages/conversations/{matchId}/read
func (s *Server) handleMarkConversationAsRead(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.MarkConversationAsRead.Handle(r.Context(), command.MarkConversationAsReadCommand{
		MatchID:  mux.Vars(r)["matchId"],
		ReaderID: userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(r.Context(), result.Outbox)
	writeJSON(w, r, http.StatusOK, map[string]int{"readCount": result.ReadCount})
}

// handleDeleteMessage handles DELETE /messages/{messageId}
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.DeleteMessage.Handle(r.Context(), command.DeleteMessageCommand{
		MessageID:   mux.Vars(r)["messageId"],
		RequesterID: userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(r.Context(), result.Outbox)
	writeJSON(w, r, http.StatusOK, result.Message)
}
