package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fitmatch/fitmatch-core/internal/application/command"
	"github.com/fitmatch/fitmatch-core/internal/application/query"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CANDIDATES
// ══════════════════════════════════════════════════════════════════════════════

// handleGetPotentialMatches handles GET /matching/potential?limit=&offset=
func (s *Server) handleGetPotentialMatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.GetPotentialMatches.Handle(r.Context(), query.GetPotentialMatchesQuery{
		UserID: userIDFrom(r.Context()),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCH LEDGER
// ══════════════════════════════════════════════════════════════════════════════

type createMatchRequest struct {
	TargetUserID       string `json:"targetUserId"`
	CompatibilityScore int    `json:"compatibilityScore"`
}

type createMatchResponse struct {
	Match   *matching.Match `json:"match"`
	Created bool            `json:"created"`
}

// handleCreateMatch handles POST /matching/match
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.CreateMatch.Handle(r.Context(), command.CreateMatchCommand{
		UserID:             userIDFrom(r.Context()),
		TargetUserID:       req.TargetUserID,
		CompatibilityScore: req.CompatibilityScore,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(r.Context(), result.Outbox)

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		logger.FromContext(r.Context()).Info("match created", logger.MatchID(result.Match.ID))
	}
	writeJSON(w, r, status, createMatchResponse{Match: result.Match, Created: result.Created})
}

// handleGetUserMatches handles GET /matching/matches?page=&limit=&includeArchived=
func (s *Server) handleGetUserMatches(w http.ResponseWriter, r *http.Request) {
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

	result, err := s.deps.GetUserMatches.Handle(r.Context(), query.GetUserMatchesQuery{
		UserID:          userIDFrom(r.Context()),
		Page:            page,
		Limit:           limit,
		IncludeArchived: queryBool(r, "includeArchived"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleArchiveMatch handles PUT /matching/matches/{id}/archive
func (s *Server) handleArchiveMatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ArchiveMatch.Handle(r.Context(), command.ArchiveMatchCommand{
		MatchID: mux.Vars(r)["id"],
		UserID:  userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(r.Context(), result.Outbox)
	writeJSON(w, r, http.StatusOK, result.Match)
}

// handleAreMatched handles GET /matching/matched/{userId}
func (s *Server) handleAreMatched(w http.ResponseWriter, r *http.Request) {
	matched, err := s.deps.AreMatched.Handle(r.Context(), query.AreMatchedQuery{
		UserID:      userIDFrom(r.Context()),
		OtherUserID: mux.Vars(r)["userId"],
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"matched": matched})
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

type preferencesResponse struct {
	*matching.Preferences
	IsDefault bool `json:"isDefault"`
}

// handleGetPreferences handles GET /matching/preferences
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetPreferences.Handle(r.Context(), query.GetPreferencesQuery{
		UserID: userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, preferencesResponse{Preferences: result.Preferences, IsDefault: result.IsDefault})
}

// handleUpdatePreferences handles PUT /matching/preferences
func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var update matching.PreferencesUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.deps.UpdatePreferences.Handle(r.Context(), command.UpdatePreferencesCommand{
		UserID: userIDFrom(r.Context()),
		Update: update,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, preferencesResponse{Preferences: result.Preferences})
}
