package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aurayield/engine/internal/domain"
)

// LeaderboardService defines what the leaderboard handler needs from the
// score aggregator.
type LeaderboardService interface {
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// LeaderboardHandler serves the Aura ranking endpoint.
type LeaderboardHandler struct {
	scores LeaderboardService
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(scores LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		scores: scores,
		logger: logger,
	}
}

type leaderboardRow struct {
	Rank      int    `json:"rank"`
	AccountID string `json:"account_id"`
	Handle    string `json:"handle"`
	Aura      int    `json:"aura"`
}

type leaderboardResponse struct {
	Entries []leaderboardRow `json:"entries"`
}

// GetLeaderboard returns the top accounts by Aura.
// GET /api/leaderboard?limit=10
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := h.scores.Top(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	rows := make([]leaderboardRow, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, leaderboardRow{
			Rank:      i + 1,
			AccountID: e.AccountID,
			Handle:    e.Handle,
			Aura:      e.Aura,
		})
	}

	writeJSON(w, http.StatusOK, leaderboardResponse{Entries: rows})
}
