package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	List(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error)
	Get(ctx context.Context, id string) (domain.Position, error)
	DeletePosition(ctx context.Context, id string) error
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "position"),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns positions, optionally filtered by status.
// GET /api/positions?status=HOLDING
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	status := domain.PositionStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "", domain.PositionStatusHolding, domain.PositionStatusSold:
	default:
		writeError(w, http.StatusBadRequest, "status must be HOLDING or SOLD")
		return
	}

	positions, err := h.positions.List(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one position.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// DeletePosition removes a position and its plans.
// DELETE /api/positions/{id}
func (h *PositionHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.positions.DeletePosition(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, "delete position", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "deleted",
		"position_id": id,
	})
}
