package domain

import "time"

// PositionStatus tracks whether a position is still held.
type PositionStatus string

const (
	PositionStatusHolding PositionStatus = "HOLDING"
	PositionStatusSold    PositionStatus = "SOLD"
)

// Position aggregates the buys and sells of one instrument into a
// weighted-average cost basis.
type Position struct {
	ID         string         `json:"id"`
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	CostPrice  float64        `json:"cost_price"`
	Quantity   int64          `json:"quantity"`
	Commission float64        `json:"commission"`
	BuyDate    time.Time      `json:"buy_date"`
	Status     PositionStatus `json:"status"`
	PlanIDs    []string       `json:"plan_ids"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IsHolding reports whether the position is open.
func (p Position) IsHolding() bool {
	return p.Status == PositionStatusHolding
}

// MarketValue is the position's worth at price.
func (p Position) MarketValue(price float64) float64 {
	return price * float64(p.Quantity)
}

// HasPlan reports whether id is referenced by the position.
func (p Position) HasPlan(id string) bool {
	for _, pid := range p.PlanIDs {
		if pid == id {
			return true
		}
	}
	return false
}

// AddPlan references a plan. It returns false if the id is already present.
func (p *Position) AddPlan(id string) bool {
	if p.HasPlan(id) {
		return false
	}
	p.PlanIDs = append(p.PlanIDs, id)
	return true
}

// RemovePlan drops a plan reference. It returns false if the id was absent.
func (p *Position) RemovePlan(id string) bool {
	for i, pid := range p.PlanIDs {
		if pid == id {
			p.PlanIDs = append(p.PlanIDs[:i], p.PlanIDs[i+1:]...)
			return true
		}
	}
	return false
}
