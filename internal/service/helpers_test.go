package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/cache/memory"
	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/alanyoungcy/stockledger/internal/store/jsonfile"
)

// recordingSink collects trigger events.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.TriggerEvent
}

func (s *recordingSink) Emit(_ context.Context, evt domain.TriggerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) all() []domain.TriggerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TriggerEvent(nil), s.events...)
}

type testLedger struct {
	store     *jsonfile.Store
	bus       *memory.SignalBus
	prices    domain.PriceCache
	locks     *memory.LockManager
	sink      *recordingSink
	positions *PositionService
	trades    *TradeService
	plans     *PlanService
	quotes    *PriceService
	profits   *ProfitService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flatFee charges exactly 5 per trade.
func flatFee() *CommissionCalculator {
	return NewCommissionCalculator(RatioOnly{Ratio: 0}, 5)
}

func newTestLedger(t *testing.T, fees *CommissionCalculator) *testLedger {
	t.Helper()
	store, err := jsonfile.Open("", discardLogger())
	require.NoError(t, err)

	l := &testLedger{
		store:  store,
		bus:    memory.NewSignalBus(100),
		prices: store.Prices(),
		locks:  memory.NewLockManager(),
		sink:   &recordingSink{},
	}
	logger := discardLogger()
	l.positions = NewPositionService(store.Positions(), store.Plans(), l.bus, store.Audit(), logger)
	l.trades = NewTradeService(store.Trades(), l.positions, fees, l.bus, store.Audit(), logger)
	l.plans = NewPlanService(store.Positions(), store.Plans(), l.bus, store.Audit(), l.sink, logger)
	l.quotes = NewPriceService(l.prices, store.Positions(), l.bus, logger)
	l.profits = NewProfitService(store.Trades(), store.Positions(), l.prices, logger)
	return l
}

func (l *testLedger) buy(t *testing.T, code string, price float64, qty int64, at time.Time) (domain.Trade, domain.Position) {
	t.Helper()
	trade, pos, err := l.trades.ExecuteBuy(context.Background(), BuyRequest{
		Code: code, Name: code + " Corp", Price: price, Quantity: qty, TradedAt: &at,
	})
	require.NoError(t, err)
	return trade, pos
}

func fp(v float64) *float64 { return &v }

func day(n int) time.Time {
	return time.Date(2024, 1, n, 10, 0, 0, 0, time.UTC)
}
