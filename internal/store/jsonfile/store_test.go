package jsonfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePosition(id, code string) domain.Position {
	return domain.Position{
		ID:        id,
		Code:      code,
		Name:      code + " Corp",
		CostPrice: 10,
		Quantity:  100,
		BuyDate:   time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		Status:    domain.PositionStatusHolding,
		PlanIDs:   []string{},
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.json")
	ctx := context.Background()

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Positions().Create(ctx, samplePosition("p1", "600519")))
	require.NoError(t, s.Prices().SetPrice(ctx, "600519", 12.5, time.Now()))
	require.NoError(t, s.Audit().Log(ctx, "position_opened", map[string]any{"code": "600519"}))

	reopened, err := Open(path, testLogger())
	require.NoError(t, err)

	pos, err := reopened.Positions().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "600519", pos.Code)
	assert.Equal(t, []string{}, pos.PlanIDs)

	price, _, err := reopened.Prices().GetPrice(ctx, "600519")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, price, 1e-9)

	entries, err := reopened.Audit().List(ctx, domain.ListOpts{Code: "600519"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "position_opened", entries[0].Event)
}

func TestStore_KeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Positions().Create(ctx, samplePosition("p1", "600519")))
	_, err = os.Stat(path + ".bak")
	assert.ErrorIs(t, err, os.ErrNotExist, "first save has nothing to back up")

	require.NoError(t, s.Positions().Create(ctx, samplePosition("p2", "000001")))
	_, err = os.Stat(path + ".bak")
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_CorruptFileFallsBackToBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Positions().Create(ctx, samplePosition("p1", "600519")))
	require.NoError(t, s.Positions().Create(ctx, samplePosition("p2", "000001")))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	recovered, err := Open(path, testLogger())
	require.NoError(t, err)
	all, err := recovered.Positions().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "backup holds the state before the last save")
	assert.Equal(t, "p1", all[0].ID)
}

func TestOpen_CorruptWithoutBackupStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	all, err := s.Positions().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPositionStore(t *testing.T) {
	s, err := Open("", testLogger())
	require.NoError(t, err)
	ctx := context.Background()
	ps := s.Positions()

	require.NoError(t, ps.Create(ctx, samplePosition("p1", "600519")))
	assert.ErrorIs(t, ps.Create(ctx, samplePosition("p1", "600519")), domain.ErrAlreadyExists)

	held, err := ps.FindHolding(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, "p1", held.ID)

	held.Status = domain.PositionStatusSold
	held.PlanIDs = append(held.PlanIDs, "x")
	require.NoError(t, ps.Update(ctx, held))

	_, err = ps.FindHolding(ctx, "600519")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := ps.GetByID(ctx, "p1")
	require.NoError(t, err)
	got.PlanIDs[0] = "mutated"
	again, err := ps.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again.PlanIDs, "callers get copies")

	require.NoError(t, ps.Delete(ctx, "p1"))
	assert.ErrorIs(t, ps.Delete(ctx, "p1"), domain.ErrNotFound)
	assert.ErrorIs(t, ps.Update(ctx, held), domain.ErrNotFound)
}

func TestPlanStore_RejectsInvalidPlans(t *testing.T) {
	s, err := Open("", testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	bad := domain.Plan{ID: "x", PositionID: "p1", Kind: domain.TriggerKindPrice, Status: domain.PlanStatusActive}
	assert.ErrorIs(t, s.Plans().Create(ctx, bad), domain.ErrInvalidTriggerConfiguration)

	tp := 12.0
	good, err := domain.NewPricePlan("x", "p1", &tp, nil, false, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Plans().Create(ctx, good))
	assert.ErrorIs(t, s.Plans().Create(ctx, good), domain.ErrAlreadyExists)
	require.NoError(t, s.Plans().Delete(ctx, "x"))

	plans, err := s.Plans().List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, plans)
	assert.Empty(t, plans)
}

func TestTradeStore_ListFilters(t *testing.T) {
	s, err := Open("", testLogger())
	require.NoError(t, err)
	ctx := context.Background()
	ts := s.Trades()

	at := func(d int) time.Time { return time.Date(2024, 1, d, 10, 0, 0, 0, time.UTC) }
	for i, tr := range []domain.Trade{
		{ID: "t3", Code: "A", Side: domain.TradeSideSell, Price: 11, Quantity: 10, TradedAt: at(3)},
		{ID: "t1", Code: "A", Side: domain.TradeSideBuy, Price: 10, Quantity: 10, TradedAt: at(1)},
		{ID: "t2", Code: "B", Side: domain.TradeSideBuy, Price: 20, Quantity: 10, TradedAt: at(2)},
	} {
		require.NoError(t, ts.Append(ctx, tr), "trade %d", i)
	}

	ids := func(trades []domain.Trade) []string {
		out := make([]string, 0, len(trades))
		for _, tr := range trades {
			out = append(out, tr.ID)
		}
		return out
	}

	since := at(2)
	tests := []struct {
		name string
		opts domain.ListOpts
		want []string
	}{
		{name: "all chronological", want: []string{"t1", "t2", "t3"}},
		{name: "by code", opts: domain.ListOpts{Code: "A"}, want: []string{"t1", "t3"}},
		{name: "since", opts: domain.ListOpts{Since: &since}, want: []string{"t2", "t3"}},
		{name: "limit offset", opts: domain.ListOpts{Limit: 1, Offset: 1}, want: []string{"t2"}},
		{name: "offset past end", opts: domain.ListOpts{Offset: 5}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.List(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	before, err := ts.ListBefore(ctx, at(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids(before))
}

func TestTradeStore_SameInstantKeepsRecordingOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	for _, tr := range []domain.Trade{
		{ID: "zz", Code: "A", Side: domain.TradeSideBuy, Price: 10, Quantity: 100, TradedAt: at},
		{ID: "aa", Code: "A", Side: domain.TradeSideBuy, Price: 20, Quantity: 100, TradedAt: at},
		{ID: "mm", Code: "A", Side: domain.TradeSideSell, Price: 30, Quantity: 100, TradedAt: at.Add(time.Hour)},
	} {
		require.NoError(t, s.Trades().Append(ctx, tr))
	}
	require.ErrorIs(t, s.Trades().Append(ctx, domain.Trade{ID: "aa", TradedAt: at}), domain.ErrAlreadyExists)

	// The sequence survives a reload and keeps counting.
	reopened, err := Open(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, reopened.Trades().Delete(ctx, "mm"))
	require.NoError(t, reopened.Trades().Append(ctx, domain.Trade{ID: "bb", Code: "A", Side: domain.TradeSideBuy, Price: 5, Quantity: 1, TradedAt: at}))

	got, err := reopened.Trades().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"zz", "aa", "bb"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, []int64{1, 2, 4}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})
}

func TestOpen_AssignsSequenceToUnsequencedHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	at := "2024-03-01T00:00:00Z"
	raw := `{"history":[` +
		`{"id":"zz","code":"A","side":"BUY","price":10,"quantity":100,"traded_at":"` + at + `"},` +
		`{"id":"aa","code":"A","side":"BUY","price":20,"quantity":100,"traded_at":"` + at + `"}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := Open(path, testLogger())
	require.NoError(t, err)
	got, err := s.Trades().List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zz", got[0].ID)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, "aa", got[1].ID)
	assert.Equal(t, int64(2), got[1].Seq)
}
