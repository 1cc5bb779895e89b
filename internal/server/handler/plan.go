package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PlanService defines the methods that the plan handler requires.
type PlanService interface {
	CreatePricePlan(ctx context.Context, positionID string, takeProfit, stopLoss *float64, autoExecute bool) (domain.Plan, error)
	CreatePercentagePlan(ctx context.Context, positionID string, takeProfitRatio, stopLossRatio *float64, autoExecute bool) (domain.Plan, error)
	Get(ctx context.Context, id string) (domain.Plan, error)
	List(ctx context.Context, positionID string) ([]domain.Plan, error)
	Execute(ctx context.Context, id string) (domain.Plan, error)
	Cancel(ctx context.Context, id string) (domain.Plan, error)
	EvaluateAll(ctx context.Context, prices map[string]float64) ([]domain.TriggerEvent, error)
}

// PriceSnapshotter builds the price map used when an evaluation request
// carries no prices of its own.
type PriceSnapshotter interface {
	Snapshot(ctx context.Context, codes []string) (map[string]float64, error)
}

// PlanHandler serves take-profit / stop-loss plan endpoints.
type PlanHandler struct {
	plans  PlanService
	prices PriceSnapshotter
	logger *slog.Logger
}

// NewPlanHandler creates a PlanHandler.
func NewPlanHandler(plans PlanService, prices PriceSnapshotter, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{
		plans:  plans,
		prices: prices,
		logger: logHandler(logger, "plan"),
	}
}

// createPlanRequest carries absolute prices for kind PRICE and ratios
// (0.10 = 10%) for kind PERCENTAGE.
type createPlanRequest struct {
	PositionID  string   `json:"position_id"`
	Kind        string   `json:"kind"`
	TakeProfit  *float64 `json:"take_profit,omitempty"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	AutoExecute bool     `json:"auto_execute"`
}

type evaluateRequest struct {
	Prices map[string]float64 `json:"prices,omitempty"`
}

type listPlansResponse struct {
	Plans []domain.Plan `json:"plans"`
}

type evaluateResponse struct {
	Events []domain.TriggerEvent `json:"events"`
}

// CreatePlan attaches a plan to a held position.
// POST /api/plans
func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PositionID == "" {
		writeError(w, http.StatusBadRequest, "position_id is required")
		return
	}

	var (
		plan domain.Plan
		err  error
	)
	switch domain.TriggerKind(strings.ToUpper(req.Kind)) {
	case domain.TriggerKindPrice, "":
		plan, err = h.plans.CreatePricePlan(r.Context(), req.PositionID, req.TakeProfit, req.StopLoss, req.AutoExecute)
	case domain.TriggerKindPercentage:
		plan, err = h.plans.CreatePercentagePlan(r.Context(), req.PositionID, req.TakeProfit, req.StopLoss, req.AutoExecute)
	default:
		writeError(w, http.StatusBadRequest, "kind must be PRICE or PERCENTAGE")
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "create plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

// ListPlans returns plans, optionally for one position.
// GET /api/plans?position_id=...
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), r.URL.Query().Get("position_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list plans", err)
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	writeJSON(w, http.StatusOK, listPlansResponse{Plans: plans})
}

// GetPlan returns one plan.
// GET /api/plans/{id}
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// ExecutePlan marks an ACTIVE plan EXECUTED.
// POST /api/plans/{id}/execute
func (h *PlanHandler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Execute(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "execute plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// CancelPlan cancels an ACTIVE plan and removes it from its position.
// POST /api/plans/{id}/cancel
func (h *PlanHandler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Cancel(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "cancel plan", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// Evaluate checks every ACTIVE plan against the supplied prices, or against
// the cached quotes of held instruments when the body is empty.
// POST /api/plans/evaluate
func (h *PlanHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	prices := req.Prices
	if len(prices) == 0 {
		snap, err := h.prices.Snapshot(r.Context(), nil)
		if err != nil {
			writeServiceError(w, r, h.logger, "build price snapshot", err)
			return
		}
		prices = snap
	}

	events, err := h.plans.EvaluateAll(r.Context(), prices)
	if err != nil {
		writeServiceError(w, r, h.logger, "evaluate plans", err)
		return
	}
	if events == nil {
		events = []domain.TriggerEvent{}
	}
	writeJSON(w, http.StatusOK, evaluateResponse{Events: events})
}
