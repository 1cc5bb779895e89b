package domain

import (
	"fmt"
	"time"
)

// TriggerKind selects how a plan's thresholds are expressed.
type TriggerKind string

const (
	TriggerKindPrice      TriggerKind = "PRICE"
	TriggerKindPercentage TriggerKind = "PERCENTAGE"
)

// PlanStatus is the lifecycle state of a plan. EXECUTED and CANCELLED are
// terminal.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "ACTIVE"
	PlanStatusExecuted  PlanStatus = "EXECUTED"
	PlanStatusCancelled PlanStatus = "CANCELLED"
)

// TriggerType is the reason a plan fired.
type TriggerType string

const (
	TriggerNone       TriggerType = ""
	TriggerTakeProfit TriggerType = "TAKE_PROFIT"
	TriggerStopLoss   TriggerType = "STOP_LOSS"
)

// Plan is a take-profit / stop-loss rule attached to a position.
// A PRICE plan uses the absolute price fields, a PERCENTAGE plan uses the
// ratio fields (0.10 = 10%).
type Plan struct {
	ID              string      `json:"id"`
	PositionID      string      `json:"position_id"`
	Kind            TriggerKind `json:"kind"`
	TakeProfitPrice *float64    `json:"take_profit_price,omitempty"`
	StopLossPrice   *float64    `json:"stop_loss_price,omitempty"`
	TakeProfitRatio *float64    `json:"take_profit_ratio,omitempty"`
	StopLossRatio   *float64    `json:"stop_loss_ratio,omitempty"`
	Status          PlanStatus  `json:"status"`
	AutoExecute     bool        `json:"auto_execute"`
	CreatedAt       time.Time   `json:"created_at"`
	ClosedAt        *time.Time  `json:"closed_at,omitempty"`
}

// NewPricePlan builds an ACTIVE plan triggered by absolute prices.
func NewPricePlan(id, positionID string, takeProfit, stopLoss *float64, autoExecute bool, now time.Time) (Plan, error) {
	p := Plan{
		ID:              id,
		PositionID:      positionID,
		Kind:            TriggerKindPrice,
		TakeProfitPrice: takeProfit,
		StopLossPrice:   stopLoss,
		Status:          PlanStatusActive,
		AutoExecute:     autoExecute,
		CreatedAt:       now,
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// NewPercentagePlan builds an ACTIVE plan triggered by the change ratio
// against the position's cost price.
func NewPercentagePlan(id, positionID string, takeProfitRatio, stopLossRatio *float64, autoExecute bool, now time.Time) (Plan, error) {
	p := Plan{
		ID:              id,
		PositionID:      positionID,
		Kind:            TriggerKindPercentage,
		TakeProfitRatio: takeProfitRatio,
		StopLossRatio:   stopLossRatio,
		Status:          PlanStatusActive,
		AutoExecute:     autoExecute,
		CreatedAt:       now,
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks that the trigger fields match the plan kind and that at
// least one positive threshold is set.
func (p Plan) Validate() error {
	if p.ID == "" || p.PositionID == "" {
		return fmt.Errorf("%w: plan and position ids are required", ErrInvalidTriggerConfiguration)
	}

	var first, second *float64
	switch p.Kind {
	case TriggerKindPrice:
		if p.TakeProfitRatio != nil || p.StopLossRatio != nil {
			return fmt.Errorf("%w: PRICE plan carries ratio fields", ErrInvalidTriggerConfiguration)
		}
		first, second = p.TakeProfitPrice, p.StopLossPrice
	case TriggerKindPercentage:
		if p.TakeProfitPrice != nil || p.StopLossPrice != nil {
			return fmt.Errorf("%w: PERCENTAGE plan carries price fields", ErrInvalidTriggerConfiguration)
		}
		first, second = p.TakeProfitRatio, p.StopLossRatio
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTriggerConfiguration, p.Kind)
	}

	if first == nil && second == nil {
		return fmt.Errorf("%w: no take-profit or stop-loss set", ErrInvalidTriggerConfiguration)
	}
	for _, v := range []*float64{first, second} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%w: trigger values must be > 0, got %v", ErrInvalidTriggerConfiguration, *v)
		}
	}
	return nil
}

// IsActive reports whether the plan can still fire.
func (p Plan) IsActive() bool {
	return p.Status == PlanStatusActive
}

// CheckTrigger evaluates the plan against a current price and the position's
// buy price. Take-profit is checked before stop-loss and at most one trigger
// is reported. It never mutates the plan.
func (p Plan) CheckTrigger(currentPrice, buyPrice float64) (bool, TriggerType) {
	if !p.IsActive() {
		return false, TriggerNone
	}

	switch p.Kind {
	case TriggerKindPrice:
		if p.TakeProfitPrice != nil && currentPrice >= *p.TakeProfitPrice {
			return true, TriggerTakeProfit
		}
		if p.StopLossPrice != nil && currentPrice <= *p.StopLossPrice {
			return true, TriggerStopLoss
		}
	case TriggerKindPercentage:
		if buyPrice <= 0 {
			return false, TriggerNone
		}
		change := (currentPrice - buyPrice) / buyPrice
		if p.TakeProfitRatio != nil && change >= *p.TakeProfitRatio {
			return true, TriggerTakeProfit
		}
		if p.StopLossRatio != nil && change <= -*p.StopLossRatio {
			return true, TriggerStopLoss
		}
	}
	return false, TriggerNone
}

// Execute marks the plan EXECUTED. It does not check the current status;
// callers evaluate CheckTrigger first.
func (p *Plan) Execute(now time.Time) {
	p.Status = PlanStatusExecuted
	p.ClosedAt = &now
}

// Cancel marks the plan CANCELLED.
func (p *Plan) Cancel(now time.Time) {
	p.Status = PlanStatusCancelled
	p.ClosedAt = &now
}
