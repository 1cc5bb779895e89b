package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// LotMatch is one FIFO slice: Quantity units of BuyTradeID closed by
// SellTradeID.
type LotMatch struct {
	Code         string    `json:"code"`
	BuyTradeID   string    `json:"buy_trade_id"`
	SellTradeID  string    `json:"sell_trade_id"`
	BuyPrice     float64   `json:"buy_price"`
	SellPrice    float64   `json:"sell_price"`
	Quantity     int64     `json:"quantity"`
	BuyFeeShare  float64   `json:"buy_fee_share"`
	SellFeeShare float64   `json:"sell_fee_share"`
	Profit       float64   `json:"profit"`
	BoughtAt     time.Time `json:"bought_at"`
	SoldAt       time.Time `json:"sold_at"`
}

// RealizedReport is the result of FIFO matching over a trade history.
type RealizedReport struct {
	Total  float64            `json:"total"`
	ByCode map[string]float64 `json:"by_code"`
	Lots   []LotMatch         `json:"lots"`
}

// ProfitCalculator computes realized and unrealized profit. It holds no
// state and never touches a store.
type ProfitCalculator struct{}

// PositionProfit is the unrealized profit of pos at price. Buy-side
// commission counts as cost. A closed position yields 0.
func (ProfitCalculator) PositionProfit(pos domain.Position, price float64) float64 {
	if pos.Quantity <= 0 {
		return 0
	}
	qty := float64(pos.Quantity)
	return price*qty - (pos.CostPrice*qty + pos.Commission)
}

// RealizedProfit matches sells against earlier buys per instrument, oldest
// first. Trades at the same instant are taken in recording order (Seq). Each trade's commission is charged in proportion to the share of
// its original quantity consumed by a slice. Unmatched quantity on either
// side is left out.
func (ProfitCalculator) RealizedProfit(trades []domain.Trade) RealizedReport {
	report := RealizedReport{ByCode: make(map[string]float64)}

	groups := make(map[string][]domain.Trade)
	var codes []string
	for _, t := range trades {
		if _, ok := groups[t.Code]; !ok {
			codes = append(codes, t.Code)
		}
		groups[t.Code] = append(groups[t.Code], t)
	}
	sort.Strings(codes)

	for _, code := range codes {
		group := groups[code]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Before(group[j])
		})

		var buys, sells []domain.Trade
		for _, t := range group {
			switch t.Side {
			case domain.TradeSideBuy:
				buys = append(buys, t)
			case domain.TradeSideSell:
				sells = append(sells, t)
			}
		}

		lots := matchFIFO(code, buys, sells)
		var subtotal float64
		for _, lot := range lots {
			subtotal += lot.Profit
		}
		if len(lots) > 0 {
			report.ByCode[code] = subtotal
		}
		report.Total += subtotal
		report.Lots = append(report.Lots, lots...)
	}
	return report
}

func matchFIFO(code string, buys, sells []domain.Trade) []LotMatch {
	var lots []LotMatch
	i, j := 0, 0
	var remBuy, remSell int64
	if len(buys) > 0 {
		remBuy = buys[0].Quantity
	}
	if len(sells) > 0 {
		remSell = sells[0].Quantity
	}

	for i < len(buys) && j < len(sells) {
		b, s := buys[i], sells[j]
		matched := min(remBuy, remSell)

		buyFee := proRate(b.Commission, matched, b.Quantity)
		sellFee := proRate(s.Commission, matched, s.Quantity)
		lots = append(lots, LotMatch{
			Code:         code,
			BuyTradeID:   b.ID,
			SellTradeID:  s.ID,
			BuyPrice:     b.Price,
			SellPrice:    s.Price,
			Quantity:     matched,
			BuyFeeShare:  buyFee,
			SellFeeShare: sellFee,
			Profit:       (s.Price-b.Price)*float64(matched) - buyFee - sellFee,
			BoughtAt:     b.TradedAt,
			SoldAt:       s.TradedAt,
		})

		remBuy -= matched
		remSell -= matched
		if remBuy == 0 {
			i++
			if i < len(buys) {
				remBuy = buys[i].Quantity
			}
		}
		if remSell == 0 {
			j++
			if j < len(sells) {
				remSell = sells[j].Quantity
			}
		}
	}
	return lots
}

func proRate(fee float64, matched, original int64) float64 {
	if original <= 0 {
		return 0
	}
	return fee * float64(matched) / float64(original)
}

// TotalRealizedProfit is RealizedProfit(trades).Total.
func (c ProfitCalculator) TotalRealizedProfit(trades []domain.Trade) float64 {
	return c.RealizedProfit(trades).Total
}

// TradeProfit is the net result of closing buy with sell, both fees
// included.
func (ProfitCalculator) TradeProfit(buy, sell domain.Trade) (float64, error) {
	if buy.Side != domain.TradeSideBuy || sell.Side != domain.TradeSideSell {
		return 0, fmt.Errorf("profit: trade profit: %w: need a BUY and a SELL", domain.ErrInvalidTrade)
	}
	return (sell.Amount() - sell.Commission) - (buy.Amount() + buy.Commission), nil
}

// ReturnRate is TradeProfit relative to the buy cost. A zero cost yields 0.
func (c ProfitCalculator) ReturnRate(buy, sell domain.Trade) (float64, error) {
	profit, err := c.TradeProfit(buy, sell)
	if err != nil {
		return 0, err
	}
	cost := buy.Amount() + buy.Commission
	if cost == 0 {
		return 0, nil
	}
	return profit / cost, nil
}

// RiskRewardRatio compares the distance to the take-profit with the
// distance to the stop-loss. With no downside the ratio is +Inf when there
// is upside and 0 otherwise.
func (ProfitCalculator) RiskRewardRatio(takeProfit, stopLoss, buy float64) (float64, error) {
	if buy <= 0 {
		return 0, fmt.Errorf("profit: risk reward: %w: buy price must be > 0", domain.ErrInvalidTrade)
	}
	profit := takeProfit - buy
	loss := buy - stopLoss
	if loss == 0 {
		if profit > 0 {
			return math.Inf(1), nil
		}
		return 0, nil
	}
	return profit / loss, nil
}
