package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// LedgerLockKey guards every ledger mutation across processes.
const LedgerLockKey = "ledger"

// PlanMonitor periodically evaluates ACTIVE plans against the cached
// prices of held instruments.
type PlanMonitor struct {
	plans    *PlanService
	prices   *PriceService
	locks    domain.LockManager
	interval time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewPlanMonitor creates a PlanMonitor. interval defaults to 30s.
func NewPlanMonitor(
	plans *PlanService,
	prices *PriceService,
	locks domain.LockManager,
	interval time.Duration,
	logger *slog.Logger,
) *PlanMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PlanMonitor{
		plans:    plans,
		prices:   prices,
		locks:    locks,
		interval: interval,
		lockTTL:  interval,
		logger:   logger.With(slog.String("component", "plan_monitor")),
	}
}

// Run evaluates plans on every tick until ctx is cancelled. Call in a
// goroutine.
func (m *PlanMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.InfoContext(ctx, "plan monitor started", slog.Duration("interval", m.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.logger.ErrorContext(ctx, "plan monitor tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick runs a single evaluation round under the ledger lock. A lock held by
// another writer skips the round without error.
func (m *PlanMonitor) Tick(ctx context.Context) ([]domain.TriggerEvent, error) {
	unlock, err := m.locks.Acquire(ctx, LedgerLockKey, m.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			m.logger.DebugContext(ctx, "plan monitor: ledger busy, skipping round")
			return nil, nil
		}
		return nil, err
	}
	defer unlock()

	snapshot, err := m.prices.Snapshot(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, nil
	}
	return m.plans.EvaluateAll(ctx, snapshot)
}
