package http

import (
	"net/http"

	"github.com/fitmatch/fitmatch-core/internal/application/command"
	"github.com/fitmatch/fitmatch-core/internal/application/query"
	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/pkg/logger"
)

type syncFitnessRequest struct {
	// AccessToken is the caller's provider token. It is used for this sync
	// only and never stored.
	AccessToken string `json:"accessToken"`
}

type syncFitnessResponse struct {
	Metrics           fitness.Metrics `json:"metrics"`
	ActivitiesFetched int             `json:"activitiesFetched"`
	Eligible          bool            `json:"eligible"`
	GateEnforced      bool            `json:"gateEnforced"`
}

// handleSyncFitness handles POST /fitness/sync
func (s *Server) handleSyncFitness(w http.ResponseWriter, r *http.Request) {
	var req syncFitnessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if s.deps.ProviderToken != nil && req.AccessToken != "" {
		ctx = s.deps.ProviderToken(ctx, req.AccessToken)
	}

	result, err := s.deps.SyncFitness.Handle(ctx, command.SyncFitnessCommand{UserID: userIDFrom(ctx)})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.push(ctx, result.Outbox)

	if result.GateEnforced && !result.Eligible {
		logger.FromContext(ctx).Info("user below registration threshold",
			logger.Float64("weekly_distance", result.Metrics.WeeklyDistance),
			logger.Int("weekly_activities", result.Metrics.WeeklyActivities),
		)
	}
	writeJSON(w, r, http.StatusOK, syncFitnessResponse{
		Metrics:           result.Metrics,
		ActivitiesFetched: result.ActivitiesFetched,
		Eligible:          result.Eligible,
		GateEnforced:      result.GateEnforced,
	})
}

// handleGetMatchStats handles GET /admin/stats
func (s *Server) handleGetMatchStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.GetMatchStats.Handle(r.Context(), query.GetMatchStatsQuery{
		RequesterID: userIDFrom(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
