package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PlanStore implements domain.PlanStore on SQLite.
type PlanStore struct {
	db *sql.DB
}

// NewPlanStore creates a PlanStore on the shared database.
func NewPlanStore(d *Database) *PlanStore {
	return &PlanStore{db: d.DB}
}

const planCols = `id, position_id, kind, take_profit_price, stop_loss_price,
	take_profit_ratio, stop_loss_ratio, status, auto_execute, created_at, closed_at`

func scanPlan(row scanner) (domain.Plan, error) {
	var (
		p                domain.Plan
		kind, status     string
		tpPrice, slPrice sql.NullFloat64
		tpRatio, slRatio sql.NullFloat64
		createdAt        string
		closedAt         sql.NullString
	)
	if err := row.Scan(&p.ID, &p.PositionID, &kind, &tpPrice, &slPrice, &tpRatio, &slRatio,
		&status, &p.AutoExecute, &createdAt, &closedAt); err != nil {
		return domain.Plan{}, err
	}
	p.Kind = domain.TriggerKind(kind)
	p.Status = domain.PlanStatus(status)
	p.TakeProfitPrice = floatPtr(tpPrice)
	p.StopLossPrice = floatPtr(slPrice)
	p.TakeProfitRatio = floatPtr(tpRatio)
	p.StopLossRatio = floatPtr(slRatio)

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Plan{}, fmt.Errorf("parse created_at: %w", err)
	}
	if closedAt.Valid {
		t, err := parseTime(closedAt.String)
		if err != nil {
			return domain.Plan{}, fmt.Errorf("parse closed_at: %w", err)
		}
		p.ClosedAt = &t
	}
	return p, nil
}

func closedAtValue(p domain.Plan) sql.NullString {
	if p.ClosedAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*p.ClosedAt), Valid: true}
}

// Create validates and inserts a plan.
func (s *PlanStore) Create(ctx context.Context, p domain.Plan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("sqlite: create plan %s: %w", p.ID, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (`+planCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PositionID, string(p.Kind),
		nullFloat(p.TakeProfitPrice), nullFloat(p.StopLossPrice),
		nullFloat(p.TakeProfitRatio), nullFloat(p.StopLossRatio),
		string(p.Status), p.AutoExecute, formatTime(p.CreatedAt), closedAtValue(p),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create plan %s: %w", p.ID, err)
	}
	return nil
}

// Update persists a plan's status transition.
func (s *PlanStore) Update(ctx context.Context, p domain.Plan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("sqlite: update plan %s: %w", p.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE plans SET status = ?, auto_execute = ?, closed_at = ? WHERE id = ?`,
		string(p.Status), p.AutoExecute, closedAtValue(p), p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update plan %s: %w", p.ID, err)
	}
	return expectOne(res, "update plan", p.ID)
}

// GetByID retrieves a plan by id.
func (s *PlanStore) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planCols+` FROM plans WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Plan{}, fmt.Errorf("sqlite: plan %s: %w", id, domain.ErrNotFound)
		}
		return domain.Plan{}, fmt.Errorf("sqlite: get plan %s: %w", id, err)
	}
	return p, nil
}

// List returns every plan in creation order.
func (s *PlanStore) List(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planCols+` FROM plans ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list plans: %w", err)
	}
	defer rows.Close()

	var out []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a plan.
func (s *PlanStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete plan %s: %w", id, err)
	}
	return expectOne(res, "delete plan", id)
}
