package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Code   string
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Lookups return ErrNotFound when the id
// (or, for FindHolding, an open position for the code) does not exist.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	FindHolding(ctx context.Context, code string) (Position, error)
	List(ctx context.Context) ([]Position, error)
	Delete(ctx context.Context, id string) error
}

// PlanStore persists take-profit / stop-loss plans independently of the
// positions that reference them.
type PlanStore interface {
	Create(ctx context.Context, plan Plan) error
	Update(ctx context.Context, plan Plan) error
	GetByID(ctx context.Context, id string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Delete(ctx context.Context, id string) error
}

// TradeStore is the append-only trade history.
type TradeStore interface {
	Append(ctx context.Context, trade Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	List(ctx context.Context, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	Delete(ctx context.Context, id string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
