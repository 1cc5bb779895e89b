package domain

import (
	"fmt"
	"time"
)

// TradeSide is the direction of a recorded trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Valid reports whether s is a known side.
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Trade is an immutable record of a single buy or sell. Seq is assigned by
// the store on Append and increases in recording order.
type Trade struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq,omitempty"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Side       TradeSide `json:"side"`
	Price      float64   `json:"price"`
	Quantity   int64     `json:"quantity"`
	Commission float64   `json:"commission"`
	TradedAt   time.Time `json:"traded_at"`
}

// NewTrade builds a Trade and rejects values that can never be recorded.
func NewTrade(id, code, name string, side TradeSide, price float64, quantity int64, commission float64, tradedAt time.Time) (Trade, error) {
	switch {
	case id == "":
		return Trade{}, fmt.Errorf("%w: empty id", ErrInvalidTrade)
	case code == "":
		return Trade{}, fmt.Errorf("%w: empty instrument code", ErrInvalidTrade)
	case !side.Valid():
		return Trade{}, fmt.Errorf("%w: unknown side %q", ErrInvalidTrade, side)
	case price <= 0:
		return Trade{}, fmt.Errorf("%w: price must be > 0, got %v", ErrInvalidTrade, price)
	case quantity <= 0:
		return Trade{}, fmt.Errorf("%w: quantity must be > 0, got %d", ErrInvalidTrade, quantity)
	case commission < 0:
		return Trade{}, fmt.Errorf("%w: commission must be >= 0, got %v", ErrInvalidTrade, commission)
	}
	return Trade{
		ID:         id,
		Code:       code,
		Name:       name,
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		Commission: commission,
		TradedAt:   tradedAt,
	}, nil
}

// Before orders trades by TradedAt, then by recording sequence.
func (t Trade) Before(o Trade) bool {
	if !t.TradedAt.Equal(o.TradedAt) {
		return t.TradedAt.Before(o.TradedAt)
	}
	return t.Seq < o.Seq
}

// Amount is price times quantity, before commission.
func (t Trade) Amount() float64 {
	return t.Price * float64(t.Quantity)
}

// TotalAmount is the cash that changed hands: commission is added on a buy
// and deducted on a sell.
func (t Trade) TotalAmount() float64 {
	if t.Side == TradeSideSell {
		return t.Amount() - t.Commission
	}
	return t.Amount() + t.Commission
}
