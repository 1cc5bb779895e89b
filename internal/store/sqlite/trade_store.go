package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// TradeStore implements domain.TradeStore on SQLite.
type TradeStore struct {
	db *sql.DB
}

// NewTradeStore creates a TradeStore on the shared database.
func NewTradeStore(d *Database) *TradeStore {
	return &TradeStore{db: d.DB}
}

const tradeCols = `id, code, name, side, price, quantity, commission, traded_at`

// tradeSelectCols adds the recording sequence, which SQLite assigns.
const tradeSelectCols = `seq, ` + tradeCols

func scanTrade(row scanner) (domain.Trade, error) {
	var (
		t              domain.Trade
		side, tradedAt string
	)
	if err := row.Scan(&t.Seq, &t.ID, &t.Code, &t.Name, &side, &t.Price, &t.Quantity, &t.Commission, &tradedAt); err != nil {
		return domain.Trade{}, err
	}
	t.Side = domain.TradeSide(side)
	ts, err := parseTime(tradedAt)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse traded_at: %w", err)
	}
	t.TradedAt = ts
	return t, nil
}

func (s *TradeStore) query(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Append inserts a trade.
func (s *TradeStore) Append(ctx context.Context, t domain.Trade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (`+tradeCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Code, t.Name, string(t.Side), t.Price, t.Quantity, t.Commission, formatTime(t.TradedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append trade %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a trade by id.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	t, err := scanTrade(s.db.QueryRowContext(ctx, `SELECT `+tradeSelectCols+` FROM trades WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trade{}, fmt.Errorf("sqlite: trade %s: %w", id, domain.ErrNotFound)
		}
		return domain.Trade{}, fmt.Errorf("sqlite: get trade %s: %w", id, err)
	}
	return t, nil
}

// List returns trades in chronological order, ties in recording order.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`
	var args []any
	if opts.Code != "" {
		query += ` AND code = ?`
		args = append(args, opts.Code)
	}
	if opts.Since != nil {
		query += ` AND traded_at >= ?`
		args = append(args, formatTime(*opts.Since))
	}
	if opts.Until != nil {
		query += ` AND traded_at <= ?`
		args = append(args, formatTime(*opts.Until))
	}
	query += ` ORDER BY traded_at, seq`
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, opts.Offset)
	}

	trades, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades strictly before the given time.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	trades, err := s.query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE traded_at < ? ORDER BY traded_at, seq`, formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades before: %w", err)
	}
	return trades, nil
}

// Delete removes a trade record.
func (s *TradeStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trades WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete trade %s: %w", id, err)
	}
	return expectOne(res, "delete trade", id)
}
