package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, code, name, cost_price, quantity, commission,
	buy_date, status, plan_ids, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	if err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.CostPrice, &p.Quantity, &p.Commission,
		&p.BuyDate, &status, &p.PlanIDs, &p.UpdatedAt,
	); err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	if p.PlanIDs == nil {
		p.PlanIDs = []string{}
	}
	return p, nil
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, code, name, cost_price, quantity, commission,
			buy_date, status, plan_ids, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Code, p.Name, p.CostPrice, p.Quantity, p.Commission,
		p.BuyDate, string(p.Status), planIDs(p.PlanIDs), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			name       = $2,
			cost_price = $3,
			quantity   = $4,
			commission = $5,
			status     = $6,
			plan_ids   = $7,
			updated_at = $8
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, p.CostPrice, p.Quantity, p.Commission,
		string(p.Status), planIDs(p.PlanIDs), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID retrieves a position by its primary key.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE id = $1`
	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// FindHolding returns the open position for code.
func (s *PositionStore) FindHolding(ctx context.Context, code string) (domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE code = $1 AND status = 'HOLDING'
		ORDER BY buy_date ASC LIMIT 1`
	p, err := scanPosition(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: holding position for %s: %w", code, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: find holding %s: %w", code, err)
	}
	return p, nil
}

// List returns every position ordered by buy date.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions ORDER BY buy_date ASC, id ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// Delete removes a position.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func planIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
