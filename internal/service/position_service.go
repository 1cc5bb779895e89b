package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PositionService folds trades into positions using weighted-average cost
// and keeps each position's plan references consistent.
type PositionService struct {
	positions domain.PositionStore
	plans     domain.PlanStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(
	positions domain.PositionStore,
	plans domain.PlanStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		plans:     plans,
		bus:       bus,
		audit:     audit,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// ApplyBuy adds a BUY trade to the open position for its instrument,
// re-averaging the cost, or opens a new position when none is held.
// The incoming commission is folded into the averaged cost.
func (s *PositionService) ApplyBuy(ctx context.Context, trade domain.Trade) (domain.Position, error) {
	if trade.Side != domain.TradeSideBuy {
		return domain.Position{}, fmt.Errorf("position_service: apply buy: %w: side %s", domain.ErrInvalidTrade, trade.Side)
	}

	now := time.Now().UTC()
	pos, err := s.positions.FindHolding(ctx, trade.Code)
	switch {
	case err == nil:
		oldQty := float64(pos.Quantity)
		qty := float64(trade.Quantity)
		pos.CostPrice = (pos.CostPrice*oldQty + trade.Price*qty + trade.Commission) / (oldQty + qty)
		pos.Quantity += trade.Quantity
		pos.Commission += trade.Commission
		pos.UpdatedAt = now
		if err := s.positions.Update(ctx, pos); err != nil {
			return domain.Position{}, fmt.Errorf("position_service: update position %q: %w", pos.ID, err)
		}
		s.afterChange(ctx, "position_updated", pos)
		return pos, nil

	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			ID:         uuid.NewString(),
			Code:       trade.Code,
			Name:       trade.Name,
			CostPrice:  trade.Price,
			Quantity:   trade.Quantity,
			Commission: trade.Commission,
			BuyDate:    trade.TradedAt,
			Status:     domain.PositionStatusHolding,
			PlanIDs:    []string{},
			UpdatedAt:  now,
		}
		if err := s.positions.Create(ctx, pos); err != nil {
			return domain.Position{}, fmt.Errorf("position_service: create position: %w", err)
		}
		s.afterChange(ctx, "position_opened", pos)
		return pos, nil

	default:
		return domain.Position{}, fmt.Errorf("position_service: find holding %q: %w", trade.Code, err)
	}
}

// ApplySell reduces a position by quantity. When nothing is left the
// position becomes SOLD and every plan it references is removed from the
// plan store. Sell-side commission never touches the cost basis.
func (s *PositionService) ApplySell(ctx context.Context, positionID string, quantity int64) (domain.Position, error) {
	pos, err := s.Get(ctx, positionID)
	if err != nil {
		return domain.Position{}, err
	}

	pos.Quantity -= quantity
	pos.UpdatedAt = time.Now().UTC()
	event := "position_updated"
	if pos.Quantity <= 0 {
		pos.Status = domain.PositionStatusSold
		s.removePlans(ctx, pos.PlanIDs)
		pos.PlanIDs = []string{}
		event = "position_sold"
	}

	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: update position %q: %w", pos.ID, err)
	}
	s.afterChange(ctx, event, pos)
	return pos, nil
}

// Get returns a position by id, translating a store miss into
// domain.ErrPositionNotFound.
func (s *PositionService) Get(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Position{}, fmt.Errorf("position_service: get %q: %w", id, domain.ErrPositionNotFound)
		}
		return domain.Position{}, fmt.Errorf("position_service: get %q: %w", id, err)
	}
	return pos, nil
}

// List returns positions, optionally restricted to one status.
func (s *PositionService) List(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error) {
	all, err := s.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list: %w", err)
	}
	if status == "" {
		return all, nil
	}
	out := make([]domain.Position, 0, len(all))
	for _, p := range all {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// Holding returns all open positions.
func (s *PositionService) Holding(ctx context.Context) ([]domain.Position, error) {
	return s.List(ctx, domain.PositionStatusHolding)
}

// DeletePosition removes a position record together with its plans. Trades
// are left untouched.
func (s *PositionService) DeletePosition(ctx context.Context, id string) error {
	pos, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.removePlans(ctx, pos.PlanIDs)
	if err := s.positions.Delete(ctx, id); err != nil {
		return fmt.Errorf("position_service: delete %q: %w", id, err)
	}

	auditLog(ctx, s.audit, s.logger, "position_deleted", map[string]any{
		"position_id": id,
		"code":        pos.Code,
	})
	s.logger.InfoContext(ctx, "position_service: position deleted",
		slog.String("position_id", id),
		slog.String("code", pos.Code),
	)
	return nil
}

func (s *PositionService) removePlans(ctx context.Context, ids []string) {
	for _, planID := range ids {
		if err := s.plans.Delete(ctx, planID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "position_service: remove plan failed",
				slog.String("plan_id", planID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *PositionService) afterChange(ctx context.Context, event string, pos domain.Position) {
	detail := map[string]any{
		"event":       event,
		"position_id": pos.ID,
		"code":        pos.Code,
		"cost_price":  pos.CostPrice,
		"quantity":    pos.Quantity,
		"status":      string(pos.Status),
	}
	publish(ctx, s.bus, s.logger, domain.ChannelPositions, detail)
	auditLog(ctx, s.audit, s.logger, event, detail)

	s.logger.InfoContext(ctx, "position_service: "+event,
		slog.String("position_id", pos.ID),
		slog.String("code", pos.Code),
		slog.Float64("cost_price", pos.CostPrice),
		slog.Int64("quantity", pos.Quantity),
	)
}
