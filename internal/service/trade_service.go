package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// BuyRequest describes a purchase to record.
type BuyRequest struct {
	Code     string
	Name     string
	Price    float64
	Quantity int64
	TradedAt *time.Time
}

// SellRequest describes a sale out of an existing position.
type SellRequest struct {
	PositionID string
	Price      float64
	Quantity   int64
	TradedAt   *time.Time
}

// TradeService validates and records buys and sells, then hands the
// resulting trade to the PositionService.
type TradeService struct {
	trades      domain.TradeStore
	positions   *PositionService
	commissions *CommissionCalculator
	bus         domain.SignalBus
	audit       domain.AuditStore
	logger      *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	trades domain.TradeStore,
	positions *PositionService,
	commissions *CommissionCalculator,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:      trades,
		positions:   positions,
		commissions: commissions,
		bus:         bus,
		audit:       audit,
		logger:      logger.With(slog.String("component", "trade_service")),
	}
}

// ExecuteBuy records a purchase and folds it into the instrument's open
// position.
func (s *TradeService) ExecuteBuy(ctx context.Context, req BuyRequest) (domain.Trade, domain.Position, error) {
	code := strings.TrimSpace(req.Code)
	if req.Price <= 0 || req.Quantity <= 0 {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: buy %q: %w: price and quantity must be positive", code, domain.ErrInvalidTrade)
	}

	fee := s.commissions.Calculate(req.Price, req.Quantity)
	trade, err := domain.NewTrade(uuid.NewString(), code, strings.TrimSpace(req.Name),
		domain.TradeSideBuy, req.Price, req.Quantity, fee, tradeTime(req.TradedAt))
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: buy %q: %w", code, err)
	}

	if err := s.trades.Append(ctx, trade); err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: append trade: %w", err)
	}

	pos, err := s.positions.ApplyBuy(ctx, trade)
	if err != nil {
		s.rollback(ctx, trade)
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: apply buy: %w", err)
	}

	s.recorded(ctx, trade, pos.ID)
	return trade, pos, nil
}

// ExecuteSell records a sale from a held position. The position must exist,
// be HOLDING and hold at least the requested quantity; nothing is written
// otherwise.
func (s *TradeService) ExecuteSell(ctx context.Context, req SellRequest) (domain.Trade, domain.Position, error) {
	pos, err := s.positions.Get(ctx, req.PositionID)
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: sell: %w", err)
	}
	if !pos.IsHolding() {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: sell %q: position is %s: %w",
			req.PositionID, pos.Status, domain.ErrPositionNotFound)
	}
	if req.Price <= 0 || req.Quantity <= 0 {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: sell %q: %w: price and quantity must be positive", req.PositionID, domain.ErrInvalidTrade)
	}
	if req.Quantity > pos.Quantity {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: sell %d of %q holding %d: %w",
			req.Quantity, req.PositionID, pos.Quantity, domain.ErrInsufficientQuantity)
	}

	fee := s.commissions.Calculate(req.Price, req.Quantity)
	trade, err := domain.NewTrade(uuid.NewString(), pos.Code, pos.Name,
		domain.TradeSideSell, req.Price, req.Quantity, fee, tradeTime(req.TradedAt))
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: sell %q: %w", req.PositionID, err)
	}

	if err := s.trades.Append(ctx, trade); err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: append trade: %w", err)
	}

	pos, err = s.positions.ApplySell(ctx, pos.ID, req.Quantity)
	if err != nil {
		s.rollback(ctx, trade)
		return domain.Trade{}, domain.Position{}, fmt.Errorf("trade_service: apply sell: %w", err)
	}

	s.recorded(ctx, trade, pos.ID)
	return trade, pos, nil
}

// rollback removes a trade whose position update failed, so history never
// holds a fill the position does not reflect.
func (s *TradeService) rollback(ctx context.Context, t domain.Trade) {
	if err := s.trades.Delete(ctx, t.ID); err != nil {
		s.logger.ErrorContext(ctx, "trade_service: rollback trade failed",
			slog.String("trade_id", t.ID),
			slog.String("code", t.Code),
			slog.String("error", err.Error()),
		)
	}
}

// List returns trade history with pagination and optional code filtering.
func (s *TradeService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list: %w", err)
	}
	return trades, nil
}

// All returns the full trade history.
func (s *TradeService) All(ctx context.Context) ([]domain.Trade, error) {
	return s.List(ctx, domain.ListOpts{})
}

// DeleteTrade removes a history record. Positions are not recomputed.
func (s *TradeService) DeleteTrade(ctx context.Context, id string) error {
	t, err := s.trades.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("trade_service: delete %q: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("trade_service: get %q: %w", id, err)
	}
	if err := s.trades.Delete(ctx, id); err != nil {
		return fmt.Errorf("trade_service: delete %q: %w", id, err)
	}

	auditLog(ctx, s.audit, s.logger, "trade_deleted", map[string]any{
		"trade_id": id,
		"code":     t.Code,
		"side":     string(t.Side),
		"quantity": t.Quantity,
	})
	s.logger.InfoContext(ctx, "trade_service: trade deleted", slog.String("trade_id", id))
	return nil
}

func (s *TradeService) recorded(ctx context.Context, t domain.Trade, positionID string) {
	detail := map[string]any{
		"event":        "trade_recorded",
		"trade_id":     t.ID,
		"position_id":  positionID,
		"code":         t.Code,
		"side":         string(t.Side),
		"price":        t.Price,
		"quantity":     t.Quantity,
		"commission":   t.Commission,
		"total_amount": t.TotalAmount(),
		"traded_at":    t.TradedAt.Format(time.RFC3339),
	}
	publish(ctx, s.bus, s.logger, domain.ChannelTrades, detail)
	auditLog(ctx, s.audit, s.logger, "trade_recorded", detail)

	s.logger.InfoContext(ctx, "trade_service: trade recorded",
		slog.String("trade_id", t.ID),
		slog.String("code", t.Code),
		slog.String("side", string(t.Side)),
		slog.Float64("price", t.Price),
		slog.Int64("quantity", t.Quantity),
		slog.Float64("commission", t.Commission),
	)
}

func tradeTime(at *time.Time) time.Time {
	if at != nil && !at.IsZero() {
		return at.UTC()
	}
	return time.Now().UTC()
}
