package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aurayield/engine/internal/domain"
)

// AccountService defines what the account handler needs from the ledger.
type AccountService interface {
	GetOrCreate(ctx context.Context, handle string) (domain.Account, error)
	Get(ctx context.Context, id string) (domain.Account, error)
	ConnectSource(ctx context.Context, id string, source domain.SourceID) error
}

// AccountHandler serves account-related HTTP endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type createAccountRequest struct {
	Handle string `json:"handle"`
}

// CreateAccount returns the account for a handle, creating it on first sight.
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	handle := strings.TrimSpace(req.Handle)
	if handle == "" {
		writeError(w, http.StatusBadRequest, "handle is required")
		return
	}

	acct, err := h.accounts.GetOrCreate(r.Context(), handle)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create account failed",
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

// GetAccount returns an account summary: balance, aura, lifetime totals, and
// connected sources.
// GET /api/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: get account failed",
				slog.String("account_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

type connectSourceRequest struct {
	Source string `json:"source"`
}

// ConnectSource attaches a wearable data source to the account.
// POST /api/accounts/{id}/sources
func (h *AccountHandler) ConnectSource(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req connectSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	source := domain.SourceID(strings.ToLower(strings.TrimSpace(req.Source)))
	if err := h.accounts.ConnectSource(r.Context(), id, source); err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: connect source failed",
				slog.String("account_id", id),
				slog.String("source", string(source)),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "connected",
		"source": string(source),
	})
}
