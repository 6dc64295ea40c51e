package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aurayield/engine/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// domainStatuses is the single mapping from domain sentinels to HTTP status
// codes. Both writeDomainError and isDomainError read it, so a new sentinel
// only needs one entry here.
var domainStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
	{domain.ErrAlreadyResolved, http.StatusConflict},
	{domain.ErrMarketClosed, http.StatusConflict},
	{domain.ErrStakeNotActive, http.StatusConflict},
	{domain.ErrOutOfSequence, http.StatusConflict},
	{domain.ErrTooEarly, http.StatusConflict},
	{domain.ErrCancelAfterStart, http.StatusConflict},
	{domain.ErrAlreadyExists, http.StatusConflict},
	{domain.ErrAccountInactive, http.StatusForbidden},
	{domain.ErrInvalidGoal, http.StatusBadRequest},
	{domain.ErrInvalidDuration, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrInvalidDeadline, http.StatusBadRequest},
	{domain.ErrNoVerificationSource, http.StatusBadRequest},
	{domain.ErrUnknownGoal, http.StatusBadRequest},
	{domain.ErrUnknownSource, http.StatusBadRequest},
}

// writeDomainError maps the error taxonomy onto HTTP status codes and sends
// the sentinel's message. Unknown errors come back as a generic 500 so
// internals never leak to clients; the handler logs them separately.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainStatuses {
		if errors.Is(err, m.err) {
			writeError(w, m.status, err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// isDomainError reports whether the error maps to a client-facing status, so
// handlers know whether to log it as a server failure.
func isDomainError(err error) bool {
	for _, m := range domainStatuses {
		if errors.Is(err, m.err) {
			return true
		}
	}
	return false
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
