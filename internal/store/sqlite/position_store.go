package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PositionStore implements domain.PositionStore on SQLite.
type PositionStore struct {
	db *sql.DB
}

// NewPositionStore creates a PositionStore on the shared database.
func NewPositionStore(d *Database) *PositionStore {
	return &PositionStore{db: d.DB}
}

const positionCols = `id, code, name, cost_price, quantity, commission, buy_date, status, plan_ids, updated_at`

func scanPosition(row scanner) (domain.Position, error) {
	var (
		p                  domain.Position
		status, planIDs    string
		buyDate, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.CostPrice, &p.Quantity, &p.Commission,
		&buyDate, &status, &planIDs, &updatedAt); err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)

	var err error
	if p.BuyDate, err = parseTime(buyDate); err != nil {
		return domain.Position{}, fmt.Errorf("parse buy_date: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Position{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(planIDs), &p.PlanIDs); err != nil {
		return domain.Position{}, fmt.Errorf("decode plan_ids: %w", err)
	}
	if p.PlanIDs == nil {
		p.PlanIDs = []string{}
	}
	return p, nil
}

func encodePlanIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	return string(b), err
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	ids, err := encodePlanIDs(p.PlanIDs)
	if err != nil {
		return fmt.Errorf("sqlite: encode plan ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO positions (`+positionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Code, p.Name, p.CostPrice, p.Quantity, p.Commission,
		formatTime(p.BuyDate), string(p.Status), ids, formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	ids, err := encodePlanIDs(p.PlanIDs)
	if err != nil {
		return fmt.Errorf("sqlite: encode plan ids: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET name = ?, cost_price = ?, quantity = ?, commission = ?,
			status = ?, plan_ids = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.CostPrice, p.Quantity, p.Commission,
		string(p.Status), ids, formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update position %s: %w", p.ID, err)
	}
	return expectOne(res, "update position", p.ID)
}

// GetByID retrieves a position by id.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.db.QueryRowContext(ctx, `SELECT `+positionCols+` FROM positions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("sqlite: position %s: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("sqlite: get position %s: %w", id, err)
	}
	return p, nil
}

// FindHolding returns the open position for code.
func (s *PositionStore) FindHolding(ctx context.Context, code string) (domain.Position, error) {
	p, err := scanPosition(s.db.QueryRowContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE code = ? AND status = 'HOLDING' ORDER BY buy_date LIMIT 1`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("sqlite: holding position for %s: %w", code, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("sqlite: find holding %s: %w", code, err)
	}
	return p, nil
}

// List returns every position ordered by buy date.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionCols+` FROM positions ORDER BY buy_date, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a position.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete position %s: %w", id, err)
	}
	return expectOne(res, "delete position", id)
}

func expectOne(res sql.Result, action, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s %s: %w", action, id, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s %s: %w", action, id, domain.ErrNotFound)
	}
	return nil
}
