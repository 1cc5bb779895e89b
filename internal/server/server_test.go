package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/cache/memory"
	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/alanyoungcy/stockledger/internal/server/handler"
	"github.com/alanyoungcy/stockledger/internal/service"
	"github.com/alanyoungcy/stockledger/internal/store/jsonfile"
)

type fakeArchiver struct {
	before time.Time
}

func (f *fakeArchiver) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return 3, nil
}

func (f *fakeArchiver) SnapshotLedger(_ context.Context, at time.Time) (string, error) {
	return "archive/snapshots/" + at.Format("20060102") + ".json", nil
}

type testAPI struct {
	handler http.Handler
	locks   *memory.LockManager
	apiKey  string
}

func newTestAPI(t *testing.T, archiver domain.Archiver) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jsonfile.Open("", logger)
	require.NoError(t, err)

	bus := memory.NewSignalBus(100)
	locks := memory.NewLockManager()
	prices := store.Prices()

	positions := service.NewPositionService(store.Positions(), store.Plans(), bus, store.Audit(), logger)
	trades := service.NewTradeService(store.Trades(), positions, service.DefaultCommissionCalculator(), bus, store.Audit(), logger)
	plans := service.NewPlanService(store.Positions(), store.Plans(), bus, store.Audit(), nil, logger)
	quotes := service.NewPriceService(prices, store.Positions(), bus, logger)
	profits := service.NewProfitService(store.Trades(), store.Positions(), prices, logger)

	h := Handlers{
		Health: handler.NewHealthHandler(logger, handler.HealthCheck{
			Name:  "store",
			Check: func(context.Context) error { return nil },
		}),
		Status:     &handler.StatusHandler{Mode: "server", StoreBackend: "json", StartedAt: time.Now()},
		Trades:     handler.NewTradeHandler(trades, logger),
		Positions:  handler.NewPositionHandler(positions, logger),
		Plans:      handler.NewPlanHandler(plans, quotes, logger),
		Prices:     handler.NewPriceHandler(quotes, logger),
		Profit:     handler.NewProfitHandler(profits, logger),
		Calculator: handler.NewCalculatorHandler(service.NewPreview(), logger),
		Archive:    handler.NewArchiveHandler(archiver, nil, 365, logger),
		Audit:      handler.NewAuditHandler(store.Audit(), logger),
	}
	cfg := Config{
		APIKey:   "secret",
		LockKey:  service.LedgerLockKey,
		LockTTL:  time.Second,
		LockWait: 100 * time.Millisecond,
	}
	return &testAPI{
		handler: NewHandler(cfg, h, Deps{Locks: locks, Limiter: memory.NewRateLimiter()}, nil, logger),
		locks:   locks,
		apiKey:  cfg.APIKey,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("X-API-Key", a.apiKey)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type tradeBody struct {
	Trade    domain.Trade    `json:"trade"`
	Position domain.Position `json:"position"`
}

func TestAPI_TradeLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/trades/buy", map[string]any{
		"code": "600519", "name": "Kweichow", "price": 10, "quantity": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bought := decode[tradeBody](t, rec)
	assert.InDelta(t, 5.23, bought.Trade.Commission, 1e-9)
	assert.Equal(t, domain.PositionStatusHolding, bought.Position.Status)

	rec = api.do(t, http.MethodPost, "/api/trades/sell", map[string]any{
		"position_id": bought.Position.ID, "price": 11, "quantity": 5000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/trades/sell", map[string]any{
		"position_id": "missing", "price": 11, "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/trades/sell", map[string]any{
		"position_id": bought.Position.ID, "price": 11, "quantity": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sold := decode[tradeBody](t, rec)
	assert.Equal(t, domain.PositionStatusSold, sold.Position.Status)

	rec = api.do(t, http.MethodGet, "/api/trades?code=600519", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Trades []domain.Trade `json:"trades"`
	}](t, rec)
	assert.Len(t, list.Trades, 2)

	rec = api.do(t, http.MethodGet, "/api/positions?status=SOLD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), bought.Position.ID)

	rec = api.do(t, http.MethodGet, "/api/positions?status=OPEN", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/profit/realized", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	realized := decode[service.RealizedReport](t, rec)
	// 100*(11-10) - 5.23 - 5.253
	assert.InDelta(t, 89.52, realized.Total, 1e-9)

	rec = api.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trade_recorded")
}

func TestAPI_PlansAndEvaluation(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/trades/buy", map[string]any{
		"code": "600519", "price": 10, "quantity": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	pos := decode[tradeBody](t, rec).Position

	rec = api.do(t, http.MethodPost, "/api/plans", map[string]any{
		"position_id": pos.ID, "kind": "percentage", "take_profit": 0.1, "auto_execute": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := decode[domain.Plan](t, rec)
	assert.Equal(t, domain.TriggerKindPercentage, plan.Kind)

	rec = api.do(t, http.MethodPost, "/api/plans", map[string]any{
		"position_id": pos.ID, "kind": "TRAILING", "take_profit": 12,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/plans", map[string]any{"position_id": pos.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no thresholds")

	// Evaluate against cached quotes when no prices are supplied.
	rec = api.do(t, http.MethodPut, "/api/prices", map[string]any{"prices": map[string]float64{"600519": 11.5}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/plans/evaluate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := decode[struct {
		Events []domain.TriggerEvent `json:"events"`
	}](t, rec)
	require.Len(t, events.Events, 1)
	assert.True(t, events.Events[0].Executed)
	assert.Equal(t, domain.TriggerTakeProfit, events.Events[0].Trigger)

	rec = api.do(t, http.MethodGet, "/api/plans/"+plan.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PlanStatusExecuted, decode[domain.Plan](t, rec).Status)

	rec = api.do(t, http.MethodPost, "/api/plans/"+plan.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/plans/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/profit/unrealized", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unrealized := decode[service.UnrealizedReport](t, rec)
	// 100*11.5 - (100*10 + 5.23)
	assert.InDelta(t, 144.77, unrealized.Total, 1e-9)
}

func TestAPI_Calculators(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/calculator/risk-reward", map[string]any{
		"buy_price": 10, "take_profit": 12, "stop_loss": 9,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ratio":2,"unbounded":false}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/calculator/risk-reward", map[string]any{
		"buy_price": 10, "take_profit": 12, "stop_loss": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ratio":null,"unbounded":true}`, rec.Body.String())

	// Calculators bypass the ledger lock.
	unlock, err := api.locks.Acquire(context.Background(), service.LedgerLockKey, time.Minute)
	require.NoError(t, err)
	defer unlock()

	rec = api.do(t, http.MethodPost, "/api/calculator/target", map[string]any{
		"buy_price": 10, "quantity": 1000, "target_percent": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"profit":"990"`)

	rec = api.do(t, http.MethodPost, "/api/trades/buy", map[string]any{
		"code": "600519", "price": 10, "quantity": 100,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_AuthAndHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store_backend":"json"`)
}

func TestAPI_Archive(t *testing.T) {
	disabled := newTestAPI(t, nil)
	rec := disabled.do(t, http.MethodPost, "/api/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = disabled.do(t, http.MethodGet, "/api/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	archiver := &fakeArchiver{}
	api := newTestAPI(t, archiver)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec = api.do(t, http.MethodPost, "/api/archive", map[string]any{"before": cutoff, "snapshot": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, cutoff.Equal(archiver.before))
	assert.Contains(t, rec.Body.String(), `"archived":3`)
	assert.Contains(t, rec.Body.String(), `"snapshot_path":"archive/snapshots/`)
}

func TestAPI_UnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodPost, "/api/trades/buy", map[string]any{
		"code": "600519", "price": 10, "quantity": 100, "side": "BUY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
