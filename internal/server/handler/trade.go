package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/alanyoungcy/stockledger/internal/service"
)

// TradeService defines the methods that the trade handler requires.
type TradeService interface {
	ExecuteBuy(ctx context.Context, req service.BuyRequest) (domain.Trade, domain.Position, error)
	ExecuteSell(ctx context.Context, req service.SellRequest) (domain.Trade, domain.Position, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
	DeleteTrade(ctx context.Context, id string) error
}

// TradeHandler serves trade-related HTTP endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logHandler(logger, "trade"),
	}
}

type buyRequest struct {
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Price    float64    `json:"price"`
	Quantity int64      `json:"quantity"`
	TradedAt *time.Time `json:"traded_at,omitempty"`
}

type sellRequest struct {
	PositionID string     `json:"position_id"`
	Price      float64    `json:"price"`
	Quantity   int64      `json:"quantity"`
	TradedAt   *time.Time `json:"traded_at,omitempty"`
}

// tradeResponse pairs the recorded trade with the position it changed.
type tradeResponse struct {
	Trade    domain.Trade    `json:"trade"`
	Position domain.Position `json:"position"`
}

type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// Buy records a purchase.
// POST /api/trades/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	trade, pos, err := h.trades.ExecuteBuy(r.Context(), service.BuyRequest{
		Code:     req.Code,
		Name:     req.Name,
		Price:    req.Price,
		Quantity: req.Quantity,
		TradedAt: req.TradedAt,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "record buy", err)
		return
	}
	writeJSON(w, http.StatusCreated, tradeResponse{Trade: trade, Position: pos})
}

// Sell records a sale out of an existing position.
// POST /api/trades/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PositionID == "" {
		writeError(w, http.StatusBadRequest, "position_id is required")
		return
	}

	trade, pos, err := h.trades.ExecuteSell(r.Context(), service.SellRequest{
		PositionID: req.PositionID,
		Price:      req.Price,
		Quantity:   req.Quantity,
		TradedAt:   req.TradedAt,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "record sell", err)
		return
	}
	writeJSON(w, http.StatusCreated, tradeResponse{Trade: trade, Position: pos})
}

// ListTrades returns trade history in chronological order.
// GET /api/trades?code=600519&since=2024-01-01&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.trades.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list trades", err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// DeleteTrade removes a trade from the history. Positions are not
// recomputed.
// DELETE /api/trades/{id}
func (h *TradeHandler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.trades.DeleteTrade(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, "delete trade", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "deleted",
		"trade_id": id,
	})
}
