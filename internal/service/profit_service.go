package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// UnrealizedLine is the mark-to-market view of one held position.
type UnrealizedLine struct {
	PositionID   string  `json:"position_id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Quantity     int64   `json:"quantity"`
	CostPrice    float64 `json:"cost_price"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
	Profit       float64 `json:"profit"`
	Priced       bool    `json:"priced"`
}

// UnrealizedReport aggregates UnrealizedLine over all held positions.
// Positions without a cached price are listed with Priced=false and do
// not contribute to Total.
type UnrealizedReport struct {
	Total float64          `json:"total"`
	Lines []UnrealizedLine `json:"lines"`
}

// ProfitService runs the ProfitCalculator over stored trades, positions
// and cached prices.
type ProfitService struct {
	trades    domain.TradeStore
	positions domain.PositionStore
	prices    domain.PriceCache
	calc      ProfitCalculator
	logger    *slog.Logger
}

// NewProfitService creates a ProfitService with all required dependencies.
func NewProfitService(
	trades domain.TradeStore,
	positions domain.PositionStore,
	prices domain.PriceCache,
	logger *slog.Logger,
) *ProfitService {
	return &ProfitService{
		trades:    trades,
		positions: positions,
		prices:    prices,
		logger:    logger.With(slog.String("component", "profit_service")),
	}
}

// Realized FIFO-matches the stored history, optionally restricted to one
// code. Money values are rounded to cents.
func (s *ProfitService) Realized(ctx context.Context, code string) (RealizedReport, error) {
	trades, err := s.trades.List(ctx, domain.ListOpts{Code: code})
	if err != nil {
		return RealizedReport{}, fmt.Errorf("profit_service: list trades: %w", err)
	}

	report := s.calc.RealizedProfit(trades)
	report.Total = cents(report.Total)
	for c, v := range report.ByCode {
		report.ByCode[c] = cents(v)
	}
	for i := range report.Lots {
		report.Lots[i].BuyFeeShare = cents(report.Lots[i].BuyFeeShare)
		report.Lots[i].SellFeeShare = cents(report.Lots[i].SellFeeShare)
		report.Lots[i].Profit = cents(report.Lots[i].Profit)
	}
	if report.Lots == nil {
		report.Lots = []LotMatch{}
	}
	return report, nil
}

// Unrealized marks every HOLDING position to its cached price.
func (s *ProfitService) Unrealized(ctx context.Context) (UnrealizedReport, error) {
	positions, err := s.positions.List(ctx)
	if err != nil {
		return UnrealizedReport{}, fmt.Errorf("profit_service: list positions: %w", err)
	}

	var codes []string
	for _, p := range positions {
		if p.IsHolding() {
			codes = append(codes, p.Code)
		}
	}
	prices := map[string]float64{}
	if len(codes) > 0 {
		prices, err = s.prices.GetPrices(ctx, codes)
		if err != nil {
			return UnrealizedReport{}, fmt.Errorf("profit_service: get prices: %w", err)
		}
	}

	report := UnrealizedReport{Lines: []UnrealizedLine{}}
	total := decimal.Zero
	for _, p := range positions {
		if !p.IsHolding() {
			continue
		}
		line := UnrealizedLine{
			PositionID: p.ID,
			Code:       p.Code,
			Name:       p.Name,
			Quantity:   p.Quantity,
			CostPrice:  cents(p.CostPrice),
		}
		if price, ok := prices[p.Code]; ok {
			profit := s.calc.PositionProfit(p, price)
			line.CurrentPrice = price
			line.MarketValue = cents(p.MarketValue(price))
			line.Profit = cents(profit)
			line.Priced = true
			total = total.Add(decimal.NewFromFloat(profit))
		}
		report.Lines = append(report.Lines, line)
	}
	report.Total = total.Round(2).InexactFloat64()
	return report, nil
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
