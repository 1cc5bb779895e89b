package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/stockledger/internal/service"
)

// PriceService defines the methods that the price handler requires.
type PriceService interface {
	UpdatePrices(ctx context.Context, prices map[string]float64) error
	Quotes(ctx context.Context, codes []string) ([]service.PriceQuote, error)
	HoldingCodes(ctx context.Context) ([]string, error)
}

// PriceHandler serves the last-price cache.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logHandler(logger, "price"),
	}
}

type updatePricesRequest struct {
	Prices map[string]float64 `json:"prices"`
}

type listQuotesResponse struct {
	Quotes []service.PriceQuote `json:"quotes"`
}

// UpdatePrices stores externally fetched quotes.
// PUT /api/prices
func (h *PriceHandler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	var req updatePricesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Prices) == 0 {
		writeError(w, http.StatusBadRequest, "prices must not be empty")
		return
	}
	if err := h.prices.UpdatePrices(r.Context(), req.Prices); err != nil {
		writeServiceError(w, r, h.logger, "update prices", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "updated",
		"updated": len(req.Prices),
	})
}

// ListQuotes returns cached quotes for the given codes, or for every held
// code when none are given.
// GET /api/prices?codes=600519,000001
func (h *PriceHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	var codes []string
	for _, c := range strings.Split(r.URL.Query().Get("codes"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		held, err := h.prices.HoldingCodes(r.Context())
		if err != nil {
			writeServiceError(w, r, h.logger, "list holding codes", err)
			return
		}
		codes = held
	}

	quotes, err := h.prices.Quotes(r.Context(), codes)
	if err != nil {
		writeServiceError(w, r, h.logger, "list quotes", err)
		return
	}
	writeJSON(w, http.StatusOK, listQuotesResponse{Quotes: quotes})
}
