package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommissionCalculator(t *testing.T) {
	tests := []struct {
		name     string
		calc     *CommissionCalculator
		price    float64
		quantity int64
		want     float64
	}{
		{name: "fixed plus ratio", calc: DefaultCommissionCalculator(), price: 10, quantity: 100, want: 5.23},
		{name: "fixed plus ratio large fill", calc: DefaultCommissionCalculator(), price: 100, quantity: 10000, want: 235},
		{name: "ratio only below floor", calc: NewCommissionCalculator(RatioOnly{Ratio: 0.00023}, 5), price: 10, quantity: 100, want: 5},
		{name: "ratio only above floor", calc: NewCommissionCalculator(RatioOnly{Ratio: 0.00023}, 5), price: 100, quantity: 10000, want: 230},
		{name: "floor dominates fixed", calc: NewCommissionCalculator(FixedPlusRatio{Fixed: 1, Ratio: 0}, 5), price: 10, quantity: 1, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.calc.Calculate(tt.price, tt.quantity)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, DefaultCommissionFloor)
		})
	}
}
