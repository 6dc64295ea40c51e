package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aurayield/engine/internal/domain"
	"github.com/aurayield/engine/internal/engine"
)

// MarketService defines what the market handler needs from the market engine.
type MarketService interface {
	CreateMarket(ctx context.Context, creatorID, claim string, goalID domain.GoalType, deadline time.Time) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	QuoteWager(ctx context.Context, marketID string, side domain.Side, amountCents int64) (engine.Quote, error)
	PlaceWager(ctx context.Context, marketID, accountID string, side domain.Side, amountCents int64) (domain.Wager, error)
	Resolve(ctx context.Context, marketID string, outcome domain.MarketOutcome, certifiedEarly bool) (domain.Market, error)
}

// MarketHandler serves prediction-market HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type createMarketRequest struct {
	CreatorID string    `json:"creator_id"`
	Claim     string    `json:"claim"`
	Goal      string    `json:"goal"`
	Deadline  time.Time `json:"deadline"`
}

// CreateMarket opens a new pari-mutuel market on a health claim.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "creator_id is required")
		return
	}

	market, err := h.markets.CreateMarket(r.Context(), req.CreatorID, req.Claim,
		domain.GoalType(req.Goal), req.Deadline)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("creator_id", req.CreatorID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// marketView decorates a market with its pool-implied odds.
type marketView struct {
	domain.Market
	YesProbability float64 `json:"yes_probability"`
	NoProbability  float64 `json:"no_probability"`
}

func viewOf(m domain.Market) marketView {
	v := marketView{Market: m}
	if p, ok := m.ImpliedProbability(domain.SideYes); ok {
		v.YesProbability = p
		v.NoProbability = 1 - p
	}
	return v
}

// listMarketsResponse wraps the list markets response.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns open markets with current odds.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListOpen(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, viewOf(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market including its odds.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: get market failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(market))
}

// QuoteWager returns the prospective payout for a wager without placing it.
// GET /api/markets/{id}/quote?side=yes&amount=5000
func (h *MarketHandler) QuoteWager(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	q := r.URL.Query()
	side := domain.Side(q.Get("side"))
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount query parameter must be an integer (cents)")
		return
	}

	quote, err := h.markets.QuoteWager(r.Context(), id, side, amount)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: quote wager failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

type placeWagerRequest struct {
	AccountID   string `json:"account_id"`
	Side        string `json:"side"`
	AmountCents int64  `json:"amount_cents"`
}

// PlaceWager debits the bettor and adds the amount to the chosen pool.
// POST /api/markets/{id}/wagers
func (h *MarketHandler) PlaceWager(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	wager, err := h.markets.PlaceWager(r.Context(), id, req.AccountID,
		domain.Side(req.Side), req.AmountCents)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: place wager failed",
				slog.String("market_id", id),
				slog.String("account_id", req.AccountID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, wager)
}

type resolveMarketRequest struct {
	Outcome        string `json:"outcome"`
	CertifiedEarly bool   `json:"certified_early"`
}

// ResolveMarket settles a market against its outcome ("yes", "no", "void").
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	outcome := domain.MarketOutcome(req.Outcome)
	switch outcome {
	case domain.OutcomeYes, domain.OutcomeNo, domain.OutcomeVoid:
	default:
		writeError(w, http.StatusBadRequest, "outcome must be yes, no, or void")
		return
	}

	market, err := h.markets.Resolve(r.Context(), id, outcome, req.CertifiedEarly)
	if err != nil {
		if !isDomainError(err) {
			h.logger.ErrorContext(r.Context(), "handler: resolve market failed",
				slog.String("market_id", id),
				slog.String("outcome", req.Outcome),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewOf(market))
}
