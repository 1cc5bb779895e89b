package domain

import (
	"context"
	"time"
)

// TriggerEvent is emitted when a plan's threshold is crossed. Executed is
// true when the plan was auto-executed and false for an advisory.
type TriggerEvent struct {
	PlanID            string      `json:"plan_id"`
	PositionID        string      `json:"position_id"`
	Code              string      `json:"code"`
	Name              string      `json:"name"`
	Trigger           TriggerType `json:"trigger"`
	Price             float64     `json:"price"`
	SuggestedQuantity int64       `json:"suggested_quantity"`
	Executed          bool        `json:"executed"`
	At                time.Time   `json:"at"`
}

// TriggerSink receives trigger events from the plan engine.
type TriggerSink interface {
	Emit(ctx context.Context, evt TriggerEvent) error
}

// TriggerSinkFunc adapts a function to TriggerSink.
type TriggerSinkFunc func(ctx context.Context, evt TriggerEvent) error

// Emit calls f.
func (f TriggerSinkFunc) Emit(ctx context.Context, evt TriggerEvent) error {
	return f(ctx, evt)
}
