package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/aurayield/engine/internal/domain"
)

// StakeService defines what the stake handler needs from the stake engine.
type StakeService interface {
	Initiate(ctx context.Context, accountID string, goalID domain.GoalType, target, principalCents int64, durationDays int, sourceID domain.SourceID) (domain.Stake, error)
	Get(ctx context.Context, id string) (domain.Stake, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Stake, error)
	RecordDailyMeasurement(ctx context.Context, stakeID string, dayIndex int, rawValue int64) (domain.Stake, error)
	Cancel(ctx context.Context, stakeID string) (domain.Stake, error)
}

// StakeHandler serves stake-related HTTP endpoints.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes: stakes,
		logger: logger,
	}
}

type createStakeRequest struct {
	AccountID      string `json:"account_id"`
	Goal           string `json:"goal"`
	Target         int64  `json:"target"`
	PrincipalCents int64  `json:"principal_cents"`
	DurationDays   int    `json:"duration_days"`
	Source         string `json:"source"`
}

// CreateStake escrows the principal and opens a new stake.
// POST /api/stakes
func (h *StakeHandler) CreateStake(w http.ResponseWriter, r *http.Request) {
	var req createStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	stake, err := h.stakes.Initiate(r.Context(), req.AccountID,
		domain.GoalType(req.Goal), req.Target, req.PrincipalCents,
		req.DurationDays, domain.SourceID(req.Source))
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: create stake failed",
				slog.String("account_id", req.AccountID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stake)
}

// listStakesResponse wraps the list stakes response.
type listStakesResponse struct {
	Stakes []domain.Stake `json:"stakes"`
}

// ListStakes returns an account's active stakes.
// GET /api/stakes?account=...
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account query parameter required")
		return
	}

	stakes, err := h.stakes.ListActiveByAccount(r.Context(), accountID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list stakes failed",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stakes")
		return
	}

	if stakes == nil {
		stakes = []domain.Stake{}
	}
	writeJSON(w, http.StatusOK, listStakesResponse{Stakes: stakes})
}

// GetStake returns a single stake with its full day-by-day record.
// GET /api/stakes/{id}
func (h *StakeHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing stake id")
		return
	}

	stake, err := h.stakes.Get(r.Context(), id)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: get stake failed",
				slog.String("stake_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stake)
}

type recordMeasurementRequest struct {
	DayIndex int   `json:"day_index"`
	RawValue int64 `json:"raw_value"`
}

// RecordMeasurement submits one day's reading for verification. Recording the
// final day settles the stake and the settled state comes back in the
// response.
// POST /api/stakes/{id}/measurements
func (h *StakeHandler) RecordMeasurement(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing stake id")
		return
	}

	var req recordMeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	stake, err := h.stakes.RecordDailyMeasurement(r.Context(), id, req.DayIndex, req.RawValue)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: record measurement failed",
				slog.String("stake_id", id),
				slog.Int("day_index", req.DayIndex),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stake)
}

// CancelStake refunds and closes a stake that has no recorded days yet.
// DELETE /api/stakes/{id}
func (h *StakeHandler) CancelStake(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing stake id")
		return
	}

	stake, err := h.stakes.Cancel(r.Context(), id)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: cancel stake failed",
				slog.String("stake_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stake)
}
