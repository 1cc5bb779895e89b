package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PriceQuote is a cached last price with the time it was recorded.
type PriceQuote struct {
	Code      string    `json:"code"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceService records the last successful quote per instrument and builds
// the snapshots the plan engine evaluates against.
type PriceService struct {
	priceCache domain.PriceCache
	positions  domain.PositionStore
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(
	priceCache domain.PriceCache,
	positions domain.PositionStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		priceCache: priceCache,
		positions:  positions,
		bus:        bus,
		logger:     logger.With(slog.String("component", "price_service")),
	}
}

// UpdatePrices stores each quote and publishes a price event. Non-positive
// prices are rejected before anything is written.
func (s *PriceService) UpdatePrices(ctx context.Context, prices map[string]float64) error {
	for code, price := range prices {
		if strings.TrimSpace(code) == "" || price <= 0 {
			return fmt.Errorf("price_service: update %q: %w: price must be > 0, got %v", code, domain.ErrInvalidTrade, price)
		}
	}

	now := time.Now().UTC()
	for code, price := range prices {
		if err := s.priceCache.SetPrice(ctx, code, price, now); err != nil {
			return fmt.Errorf("price_service: set price for %q: %w", code, err)
		}
		publish(ctx, s.bus, s.logger, domain.ChannelPrices, map[string]any{
			"event":     "price_update",
			"code":      code,
			"price":     price,
			"timestamp": now.Format(time.RFC3339Nano),
		})
	}

	s.logger.DebugContext(ctx, "price_service: prices updated", slog.Int("count", len(prices)))
	return nil
}

// GetPrice returns the latest cached price and its timestamp for one code.
func (s *PriceService) GetPrice(ctx context.Context, code string) (float64, time.Time, error) {
	price, ts, err := s.priceCache.GetPrice(ctx, code)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get price for %q: %w", code, err)
	}
	return price, ts, nil
}

// GetPrices returns the latest cached prices. Missing codes are omitted.
func (s *PriceService) GetPrices(ctx context.Context, codes []string) (map[string]float64, error) {
	prices, err := s.priceCache.GetPrices(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}

// Quotes returns the cached quote for each code that has one, sorted by
// code.
func (s *PriceService) Quotes(ctx context.Context, codes []string) ([]PriceQuote, error) {
	out := make([]PriceQuote, 0, len(codes))
	for _, code := range codes {
		price, ts, err := s.priceCache.GetPrice(ctx, code)
		if err != nil {
			continue
		}
		out = append(out, PriceQuote{Code: code, Price: price, UpdatedAt: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// HoldingCodes returns the distinct codes of every HOLDING position.
func (s *PriceService) HoldingCodes(ctx context.Context) ([]string, error) {
	positions, err := s.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("price_service: list positions: %w", err)
	}
	seen := make(map[string]struct{}, len(positions))
	codes := make([]string, 0, len(positions))
	for _, p := range positions {
		if !p.IsHolding() {
			continue
		}
		if _, ok := seen[p.Code]; ok {
			continue
		}
		seen[p.Code] = struct{}{}
		codes = append(codes, p.Code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Snapshot builds a price map for the given codes, or for every held code
// when codes is empty. Codes without a cached quote are left out.
func (s *PriceService) Snapshot(ctx context.Context, codes []string) (map[string]float64, error) {
	if len(codes) == 0 {
		held, err := s.HoldingCodes(ctx)
		if err != nil {
			return nil, err
		}
		codes = held
	}
	if len(codes) == 0 {
		return map[string]float64{}, nil
	}
	return s.GetPrices(ctx, codes)
}
