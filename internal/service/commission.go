package service

import "math"

// Default commission schedule.
const (
	DefaultCommissionFixed = 5.0
	DefaultCommissionRatio = 0.00023
	DefaultCommissionFloor = 5.0
)

// CommissionStrategy computes the raw fee for a fill before the floor is
// applied.
type CommissionStrategy interface {
	Fee(price float64, quantity int64) float64
}

// FixedPlusRatio charges a fixed amount plus a ratio of the traded amount.
type FixedPlusRatio struct {
	Fixed float64
	Ratio float64
}

// Fee implements CommissionStrategy.
func (s FixedPlusRatio) Fee(price float64, quantity int64) float64 {
	return s.Fixed + price*float64(quantity)*s.Ratio
}

// RatioOnly charges a ratio of the traded amount.
type RatioOnly struct {
	Ratio float64
}

// Fee implements CommissionStrategy.
func (s RatioOnly) Fee(price float64, quantity int64) float64 {
	return price * float64(quantity) * s.Ratio
}

// CommissionCalculator applies a minimum fee on top of a strategy.
type CommissionCalculator struct {
	strategy CommissionStrategy
	floor    float64
}

// NewCommissionCalculator creates a calculator. The floor is enforced
// regardless of the strategy's own terms.
func NewCommissionCalculator(strategy CommissionStrategy, floor float64) *CommissionCalculator {
	return &CommissionCalculator{strategy: strategy, floor: floor}
}

// DefaultCommissionCalculator returns the 5.0 + 0.023% schedule with a 5.0
// minimum.
func DefaultCommissionCalculator() *CommissionCalculator {
	return NewCommissionCalculator(
		FixedPlusRatio{Fixed: DefaultCommissionFixed, Ratio: DefaultCommissionRatio},
		DefaultCommissionFloor,
	)
}

// Calculate returns the fee for a fill of quantity units at price.
func (c *CommissionCalculator) Calculate(price float64, quantity int64) float64 {
	return math.Max(c.strategy.Fee(price, quantity), c.floor)
}
