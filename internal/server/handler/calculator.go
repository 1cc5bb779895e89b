package handler

import (
	"log/slog"
	"math"
	"net/http"

	"github.com/alanyoungcy/stockledger/internal/service"
)

// CalculatorHandler serves stateless what-if calculations.
type CalculatorHandler struct {
	preview *service.Preview
	calc    service.ProfitCalculator
	logger  *slog.Logger
}

// NewCalculatorHandler creates a CalculatorHandler.
func NewCalculatorHandler(preview *service.Preview, logger *slog.Logger) *CalculatorHandler {
	return &CalculatorHandler{
		preview: preview,
		logger:  logHandler(logger, "calculator"),
	}
}

type targetRequest struct {
	BuyPrice      float64 `json:"buy_price"`
	Quantity      int64   `json:"quantity"`
	TargetPercent float64 `json:"target_percent"`
}

type riskRewardRequest struct {
	BuyPrice   float64 `json:"buy_price"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

// Target previews the fees and profit of selling at a percentage gain.
// POST /api/calculator/target
func (h *CalculatorHandler) Target(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	preview, err := h.preview.TargetPreview(req.BuyPrice, req.Quantity, req.TargetPercent)
	if err != nil {
		writeServiceError(w, r, h.logger, "preview target", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// RiskReward returns the ratio of potential gain to potential loss. An
// unbounded ratio is reported as null with unbounded=true.
// POST /api/calculator/risk-reward
func (h *CalculatorHandler) RiskReward(w http.ResponseWriter, r *http.Request) {
	var req riskRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ratio, err := h.calc.RiskRewardRatio(req.TakeProfit, req.StopLoss, req.BuyPrice)
	if err != nil {
		writeServiceError(w, r, h.logger, "compute risk reward", err)
		return
	}

	resp := map[string]any{"unbounded": math.IsInf(ratio, 1)}
	if math.IsInf(ratio, 1) {
		resp["ratio"] = nil
	} else {
		resp["ratio"] = math.Round(ratio*100) / 100
	}
	writeJSON(w, http.StatusOK, resp)
}
