package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PlanStore implements domain.PlanStore using PostgreSQL.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a new PlanStore backed by the given connection pool.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

const planSelectCols = `id, position_id, kind, take_profit_price, stop_loss_price,
	take_profit_ratio, stop_loss_ratio, status, auto_execute, created_at, closed_at`

func scanPlan(row pgx.Row) (domain.Plan, error) {
	var p domain.Plan
	var kind, status string
	if err := row.Scan(
		&p.ID, &p.PositionID, &kind,
		&p.TakeProfitPrice, &p.StopLossPrice,
		&p.TakeProfitRatio, &p.StopLossRatio,
		&status, &p.AutoExecute, &p.CreatedAt, &p.ClosedAt,
	); err != nil {
		return domain.Plan{}, err
	}
	p.Kind = domain.TriggerKind(kind)
	p.Status = domain.PlanStatus(status)
	return p, nil
}

// Create validates and inserts a new plan.
func (s *PlanStore) Create(ctx context.Context, p domain.Plan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("postgres: create plan %s: %w", p.ID, err)
	}

	const query = `
		INSERT INTO plans (
			id, position_id, kind, take_profit_price, stop_loss_price,
			take_profit_ratio, stop_loss_ratio, status, auto_execute, created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.PositionID, string(p.Kind),
		p.TakeProfitPrice, p.StopLossPrice,
		p.TakeProfitRatio, p.StopLossRatio,
		string(p.Status), p.AutoExecute, p.CreatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create plan %s: %w", p.ID, err)
	}
	return nil
}

// Update persists a plan's status transition. Trigger fields are fixed at
// creation and are not rewritten.
func (s *PlanStore) Update(ctx context.Context, p domain.Plan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("postgres: update plan %s: %w", p.ID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET status = $2, auto_execute = $3, closed_at = $4 WHERE id = $1`,
		p.ID, string(p.Status), p.AutoExecute, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update plan %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update plan %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a plan by its primary key.
func (s *PlanStore) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	query := `SELECT ` + planSelectCols + ` FROM plans WHERE id = $1`
	p, err := scanPlan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, fmt.Errorf("postgres: plan %s: %w", id, domain.ErrNotFound)
		}
		return domain.Plan{}, fmt.Errorf("postgres: get plan %s: %w", id, err)
	}
	return p, nil
}

// List returns every stored plan in creation order.
func (s *PlanStore) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planSelectCols+` FROM plans ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list plans rows: %w", err)
	}
	return plans, nil
}

// Delete removes a plan.
func (s *PlanStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete plan %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete plan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
