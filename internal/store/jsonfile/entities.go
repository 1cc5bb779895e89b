package jsonfile

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PositionStore implements domain.PositionStore over the document.
type PositionStore struct{ s *Store }

func clonePosition(p domain.Position) domain.Position {
	p.PlanIDs = slices.Clone(p.PlanIDs)
	if p.PlanIDs == nil {
		p.PlanIDs = []string{}
	}
	return p
}

func findPosition(d *document, id string) int {
	return slices.IndexFunc(d.Positions, func(p domain.Position) bool { return p.ID == id })
}

// Create adds a new position.
func (ps *PositionStore) Create(_ context.Context, pos domain.Position) error {
	return ps.s.update(func(d *document) error {
		if findPosition(d, pos.ID) >= 0 {
			return fmt.Errorf("jsonfile: create position %s: %w", pos.ID, domain.ErrAlreadyExists)
		}
		d.Positions = append(d.Positions, clonePosition(pos))
		return nil
	})
}

// Update replaces a stored position.
func (ps *PositionStore) Update(_ context.Context, pos domain.Position) error {
	return ps.s.update(func(d *document) error {
		i := findPosition(d, pos.ID)
		if i < 0 {
			return fmt.Errorf("jsonfile: update position %s: %w", pos.ID, domain.ErrNotFound)
		}
		d.Positions[i] = clonePosition(pos)
		return nil
	})
}

// GetByID returns a position by id.
func (ps *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	var (
		out   domain.Position
		found bool
	)
	ps.s.view(func(d *document) {
		if i := findPosition(d, id); i >= 0 {
			out, found = clonePosition(d.Positions[i]), true
		}
	})
	if !found {
		return domain.Position{}, fmt.Errorf("jsonfile: position %s: %w", id, domain.ErrNotFound)
	}
	return out, nil
}

// FindHolding returns the open position for code.
func (ps *PositionStore) FindHolding(_ context.Context, code string) (domain.Position, error) {
	var (
		out   domain.Position
		found bool
	)
	ps.s.view(func(d *document) {
		for _, p := range d.Positions {
			if p.Code == code && p.IsHolding() {
				out, found = clonePosition(p), true
				return
			}
		}
	})
	if !found {
		return domain.Position{}, fmt.Errorf("jsonfile: holding position for %s: %w", code, domain.ErrNotFound)
	}
	return out, nil
}

// List returns every position in insertion order.
func (ps *PositionStore) List(_ context.Context) ([]domain.Position, error) {
	var out []domain.Position
	ps.s.view(func(d *document) {
		out = make([]domain.Position, 0, len(d.Positions))
		for _, p := range d.Positions {
			out = append(out, clonePosition(p))
		}
	})
	return out, nil
}

// Delete removes a position.
func (ps *PositionStore) Delete(_ context.Context, id string) error {
	return ps.s.update(func(d *document) error {
		i := findPosition(d, id)
		if i < 0 {
			return fmt.Errorf("jsonfile: delete position %s: %w", id, domain.ErrNotFound)
		}
		d.Positions = slices.Delete(d.Positions, i, i+1)
		return nil
	})
}

// PlanStore implements domain.PlanStore over the document.
type PlanStore struct{ s *Store }

func findPlan(d *document, id string) int {
	return slices.IndexFunc(d.Plans, func(p domain.Plan) bool { return p.ID == id })
}

// Create validates and adds a plan.
func (pl *PlanStore) Create(_ context.Context, plan domain.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("jsonfile: create plan %s: %w", plan.ID, err)
	}
	return pl.s.update(func(d *document) error {
		if findPlan(d, plan.ID) >= 0 {
			return fmt.Errorf("jsonfile: create plan %s: %w", plan.ID, domain.ErrAlreadyExists)
		}
		d.Plans = append(d.Plans, plan)
		return nil
	})
}

// Update validates and replaces a stored plan.
func (pl *PlanStore) Update(_ context.Context, plan domain.Plan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("jsonfile: update plan %s: %w", plan.ID, err)
	}
	return pl.s.update(func(d *document) error {
		i := findPlan(d, plan.ID)
		if i < 0 {
			return fmt.Errorf("jsonfile: update plan %s: %w", plan.ID, domain.ErrNotFound)
		}
		d.Plans[i] = plan
		return nil
	})
}

// GetByID returns a plan by id.
func (pl *PlanStore) GetByID(_ context.Context, id string) (domain.Plan, error) {
	var (
		out   domain.Plan
		found bool
	)
	pl.s.view(func(d *document) {
		if i := findPlan(d, id); i >= 0 {
			out, found = d.Plans[i], true
		}
	})
	if !found {
		return domain.Plan{}, fmt.Errorf("jsonfile: plan %s: %w", id, domain.ErrNotFound)
	}
	return out, nil
}

// List returns every plan in insertion order.
func (pl *PlanStore) List(_ context.Context) ([]domain.Plan, error) {
	var out []domain.Plan
	pl.s.view(func(d *document) {
		out = slices.Clone(d.Plans)
	})
	if out == nil {
		out = []domain.Plan{}
	}
	return out, nil
}

// Delete removes a plan.
func (pl *PlanStore) Delete(_ context.Context, id string) error {
	return pl.s.update(func(d *document) error {
		i := findPlan(d, id)
		if i < 0 {
			return fmt.Errorf("jsonfile: delete plan %s: %w", id, domain.ErrNotFound)
		}
		d.Plans = slices.Delete(d.Plans, i, i+1)
		return nil
	})
}

// TradeStore implements domain.TradeStore over the document's history.
type TradeStore struct{ s *Store }

// Append adds a trade to the history and stamps its recording sequence.
func (ts *TradeStore) Append(_ context.Context, t domain.Trade) error {
	return ts.s.update(func(d *document) error {
		if slices.ContainsFunc(d.History, func(h domain.Trade) bool { return h.ID == t.ID }) {
			return fmt.Errorf("jsonfile: append trade %s: %w", t.ID, domain.ErrAlreadyExists)
		}
		d.NextSeq++
		t.Seq = d.NextSeq
		d.History = append(d.History, t)
		return nil
	})
}

// GetByID returns a trade by id.
func (ts *TradeStore) GetByID(_ context.Context, id string) (domain.Trade, error) {
	var (
		out   domain.Trade
		found bool
	)
	ts.s.view(func(d *document) {
		if i := slices.IndexFunc(d.History, func(t domain.Trade) bool { return t.ID == id }); i >= 0 {
			out, found = d.History[i], true
		}
	})
	if !found {
		return domain.Trade{}, fmt.Errorf("jsonfile: trade %s: %w", id, domain.ErrNotFound)
	}
	return out, nil
}

// List returns trades in chronological order with optional filtering and
// pagination.
func (ts *TradeStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	var all []domain.Trade
	ts.s.view(func(d *document) {
		all = slices.Clone(d.History)
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].Before(all[j]) })

	out := make([]domain.Trade, 0, len(all))
	for _, t := range all {
		if opts.Code != "" && t.Code != opts.Code {
			continue
		}
		if opts.Since != nil && t.TradedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && t.TradedAt.After(*opts.Until) {
			continue
		}
		out = append(out, t)
	}
	return paginate(out, opts), nil
}

// ListBefore returns trades strictly before the given time.
func (ts *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	all, err := ts.List(ctx, domain.ListOpts{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Trade, 0, len(all))
	for _, t := range all {
		if t.TradedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Delete removes a trade from the history.
func (ts *TradeStore) Delete(_ context.Context, id string) error {
	return ts.s.update(func(d *document) error {
		i := slices.IndexFunc(d.History, func(t domain.Trade) bool { return t.ID == id })
		if i < 0 {
			return fmt.Errorf("jsonfile: delete trade %s: %w", id, domain.ErrNotFound)
		}
		d.History = slices.Delete(d.History, i, i+1)
		return nil
	})
}

// AuditStore implements domain.AuditStore over the document.
type AuditStore struct{ s *Store }

// maxAuditEntries bounds the audit section of the document.
const maxAuditEntries = 5000

// Log appends an audit entry, dropping the oldest past maxAuditEntries.
func (as *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	return as.s.update(func(d *document) error {
		var next int64 = 1
		if n := len(d.Audit); n > 0 {
			next = d.Audit[n-1].ID + 1
		}
		d.Audit = append(d.Audit, domain.AuditEntry{
			ID:        next,
			Event:     event,
			Detail:    detail,
			CreatedAt: time.Now().UTC(),
		})
		if over := len(d.Audit) - maxAuditEntries; over > 0 {
			d.Audit = slices.Delete(d.Audit, 0, over)
		}
		return nil
	})
}

// List returns audit entries newest first.
func (as *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	as.s.view(func(d *document) {
		out = make([]domain.AuditEntry, 0, len(d.Audit))
		for i := len(d.Audit) - 1; i >= 0; i-- {
			e := d.Audit[i]
			if opts.Code != "" {
				if code, _ := e.Detail["code"].(string); code != opts.Code {
					continue
				}
			}
			if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
				continue
			}
			if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
				continue
			}
			out = append(out, e)
		}
	})
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// PriceCache implements domain.PriceCache over last_prices.
type PriceCache struct{ s *Store }

// SetPrice remembers the latest quote for code.
func (pc *PriceCache) SetPrice(_ context.Context, code string, price float64, ts time.Time) error {
	return pc.s.update(func(d *document) error {
		d.LastPrices[code] = Quote{Price: price, UpdatedAt: ts.UTC()}
		return nil
	})
}

// GetPrice returns the remembered quote for code.
func (pc *PriceCache) GetPrice(_ context.Context, code string) (float64, time.Time, error) {
	var (
		q     Quote
		found bool
	)
	pc.s.view(func(d *document) {
		q, found = d.LastPrices[code]
	})
	if !found {
		return 0, time.Time{}, fmt.Errorf("jsonfile: price %s: %w", code, domain.ErrNotFound)
	}
	return q.Price, q.UpdatedAt, nil
}

// GetPrices returns remembered prices for codes. Unknown codes are omitted.
func (pc *PriceCache) GetPrices(_ context.Context, codes []string) (map[string]float64, error) {
	out := make(map[string]float64, len(codes))
	pc.s.view(func(d *document) {
		for _, c := range codes {
			if q, ok := d.LastPrices[c]; ok {
				out[c] = q.Price
			}
		}
	})
	return out, nil
}

var (
	_ domain.PositionStore = (*PositionStore)(nil)
	_ domain.PlanStore     = (*PlanStore)(nil)
	_ domain.TradeStore    = (*TradeStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
	_ domain.PriceCache    = (*PriceCache)(nil)
)
