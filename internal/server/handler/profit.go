package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/stockledger/internal/service"
)

// ProfitService defines the methods that the profit handler requires.
type ProfitService interface {
	Realized(ctx context.Context, code string) (service.RealizedReport, error)
	Unrealized(ctx context.Context) (service.UnrealizedReport, error)
}

// ProfitHandler serves realized and unrealized profit reports.
type ProfitHandler struct {
	profits ProfitService
	logger  *slog.Logger
}

// NewProfitHandler creates a ProfitHandler.
func NewProfitHandler(profits ProfitService, logger *slog.Logger) *ProfitHandler {
	return &ProfitHandler{
		profits: profits,
		logger:  logHandler(logger, "profit"),
	}
}

// Realized returns the FIFO realized profit report.
// GET /api/profit/realized?code=600519
func (h *ProfitHandler) Realized(w http.ResponseWriter, r *http.Request) {
	report, err := h.profits.Realized(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeServiceError(w, r, h.logger, "compute realized profit", err)
		return
	}
	if report.Lots == nil {
		report.Lots = []service.LotMatch{}
	}
	writeJSON(w, http.StatusOK, report)
}

// Unrealized returns mark-to-market profit of held positions.
// GET /api/profit/unrealized
func (h *ProfitHandler) Unrealized(w http.ResponseWriter, r *http.Request) {
	report, err := h.profits.Unrealized(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "compute unrealized profit", err)
		return
	}
	if report.Lines == nil {
		report.Lines = []service.UnrealizedLine{}
	}
	writeJSON(w, http.StatusOK, report)
}
