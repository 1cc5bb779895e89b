package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestNewPricePlan_Validation(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		tp, sl  *float64
		wantErr bool
	}{
		{name: "both", tp: f(12), sl: f(9)},
		{name: "take profit only", tp: f(12)},
		{name: "stop loss only", sl: f(9)},
		{name: "neither", wantErr: true},
		{name: "zero take profit", tp: f(0), wantErr: true},
		{name: "negative stop loss", sl: f(-1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPricePlan("plan-1", "pos-1", tt.tp, tt.sl, false, now)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTriggerConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PlanStatusActive, p.Status)
			assert.Equal(t, TriggerKindPrice, p.Kind)
			assert.Equal(t, now, p.CreatedAt)
			assert.Nil(t, p.ClosedAt)
		})
	}
}

func TestPlanValidate_KindMismatch(t *testing.T) {
	p := Plan{ID: "p", PositionID: "pos", Kind: TriggerKindPrice, TakeProfitPrice: f(12), StopLossRatio: f(0.05)}
	assert.ErrorIs(t, p.Validate(), ErrInvalidTriggerConfiguration)

	p = Plan{ID: "p", PositionID: "pos", Kind: TriggerKindPercentage, TakeProfitRatio: f(0.1), StopLossPrice: f(9)}
	assert.ErrorIs(t, p.Validate(), ErrInvalidTriggerConfiguration)

	p = Plan{ID: "p", PositionID: "pos", Kind: "TRAILING", TakeProfitPrice: f(12)}
	assert.ErrorIs(t, p.Validate(), ErrInvalidTriggerConfiguration)
}

func TestCheckTrigger_Price(t *testing.T) {
	p, err := NewPricePlan("p", "pos", f(12), f(9), false, time.Now())
	require.NoError(t, err)

	tests := []struct {
		price     float64
		triggered bool
		want      TriggerType
	}{
		{price: 12, triggered: true, want: TriggerTakeProfit},
		{price: 12.5, triggered: true, want: TriggerTakeProfit},
		{price: 11.99, triggered: false, want: TriggerNone},
		{price: 10, triggered: false, want: TriggerNone},
		{price: 9, triggered: true, want: TriggerStopLoss},
		{price: 8, triggered: true, want: TriggerStopLoss},
	}
	for _, tt := range tests {
		ok, kind := p.CheckTrigger(tt.price, 10)
		assert.Equal(t, tt.triggered, ok, "price %v", tt.price)
		assert.Equal(t, tt.want, kind, "price %v", tt.price)
	}
}

func TestCheckTrigger_Percentage(t *testing.T) {
	p, err := NewPercentagePlan("p", "pos", f(0.10), f(0.05), true, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name      string
		price     float64
		buy       float64
		triggered bool
		want      TriggerType
	}{
		{name: "gain reached", price: 11, buy: 10, triggered: true, want: TriggerTakeProfit},
		{name: "gain short", price: 10.9, buy: 10, triggered: false},
		{name: "loss reached", price: 9.5, buy: 10, triggered: true, want: TriggerStopLoss},
		{name: "loss short", price: 9.6, buy: 10, triggered: false},
		{name: "zero buy price", price: 100, buy: 0, triggered: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, kind := p.CheckTrigger(tt.price, tt.buy)
			assert.Equal(t, tt.triggered, ok)
			if tt.triggered {
				assert.Equal(t, tt.want, kind)
			} else {
				assert.Equal(t, TriggerNone, kind)
			}
		})
	}
}

func TestCheckTrigger_TakeProfitWinsAndIsIdempotent(t *testing.T) {
	// Overlapping thresholds: both conditions hold at 10.
	p, err := NewPricePlan("p", "pos", f(10), f(11), false, time.Now())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ok, kind := p.CheckTrigger(10, 10)
		assert.True(t, ok)
		assert.Equal(t, TriggerTakeProfit, kind)
	}
	assert.Equal(t, PlanStatusActive, p.Status)
}

func TestCheckTrigger_InactivePlansNeverFire(t *testing.T) {
	now := time.Now()
	p, err := NewPricePlan("p", "pos", f(12), nil, false, now)
	require.NoError(t, err)

	executed := p
	executed.Execute(now)
	ok, _ := executed.CheckTrigger(20, 10)
	assert.False(t, ok)
	assert.Equal(t, PlanStatusExecuted, executed.Status)
	require.NotNil(t, executed.ClosedAt)

	cancelled := p
	cancelled.Cancel(now)
	ok, _ = cancelled.CheckTrigger(20, 10)
	assert.False(t, ok)
	assert.Equal(t, PlanStatusCancelled, cancelled.Status)
}
