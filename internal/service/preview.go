package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// Preview fee settings: ratio-only with the usual 5.0 floor.
const (
	PreviewCommissionRatio = 0.00023
	PreviewCommissionFloor = 5.0
)

// TargetPreview is a what-if for selling a lot at a percentage gain.
type TargetPreview struct {
	BuyPrice      decimal.Decimal `json:"buy_price"`
	Quantity      int64           `json:"quantity"`
	TargetPercent decimal.Decimal `json:"target_percent"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	BuyAmount     decimal.Decimal `json:"buy_amount"`
	SellAmount    decimal.Decimal `json:"sell_amount"`
	BuyFee        decimal.Decimal `json:"buy_fee"`
	SellFee       decimal.Decimal `json:"sell_fee"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	Profit        decimal.Decimal `json:"profit"`
}

// Preview computes target-price previews with its own commission schedule.
type Preview struct {
	fees *CommissionCalculator
}

// NewPreview returns a Preview using the ratio-only preview schedule.
func NewPreview() *Preview {
	return &Preview{fees: NewCommissionCalculator(RatioOnly{Ratio: PreviewCommissionRatio}, PreviewCommissionFloor)}
}

// TargetPreview prices buying quantity at buyPrice and selling at
// buyPrice*(1+targetPercent/100). Values are rounded to cents.
func (p *Preview) TargetPreview(buyPrice float64, quantity int64, targetPercent float64) (TargetPreview, error) {
	if buyPrice <= 0 || quantity <= 0 {
		return TargetPreview{}, fmt.Errorf("preview: target: %w: buy price and quantity must be positive", domain.ErrInvalidTrade)
	}

	buy := decimal.NewFromFloat(buyPrice)
	qty := decimal.NewFromInt(quantity)
	pct := decimal.NewFromFloat(targetPercent)
	target := buy.Mul(decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100))))

	buyAmount := buy.Mul(qty)
	sellAmount := target.Mul(qty)
	buyFee := decimal.NewFromFloat(p.fees.Calculate(buyPrice, quantity))
	sellFee := decimal.NewFromFloat(p.fees.Calculate(target.InexactFloat64(), quantity))
	fees := buyFee.Add(sellFee)
	profit := sellAmount.Sub(buyAmount).Sub(fees)

	return TargetPreview{
		BuyPrice:      buy.Round(2),
		Quantity:      quantity,
		TargetPercent: pct.Round(2),
		TargetPrice:   target.Round(2),
		BuyAmount:     buyAmount.Round(2),
		SellAmount:    sellAmount.Round(2),
		BuyFee:        buyFee.Round(2),
		SellFee:       sellFee.Round(2),
		TotalFees:     fees.Round(2),
		Profit:        profit.Round(2),
	}, nil
}
