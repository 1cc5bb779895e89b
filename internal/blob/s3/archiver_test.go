package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/alanyoungcy/stockledger/internal/store/jsonfile"
)

type memWriter struct {
	objects     map[string][]byte
	multiparts  int
	contentType map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, contentType: map[string]string{}}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = raw
	m.contentType[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multiparts++
	return m.Put(ctx, path, data, "")
}

func newTestArchiver(t *testing.T, prefix string) (*Archiver, *memWriter, *jsonfile.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := jsonfile.Open("", logger)
	require.NoError(t, err)

	w := newMemWriter()
	src := LedgerSource{Positions: store.Positions(), Plans: store.Plans(), Trades: store.Trades()}
	return NewArchiver(w, src, store.Audit(), prefix, logger), w, store
}

func TestArchiveTrades(t *testing.T) {
	a, w, store := newTestArchiver(t, "ledger")
	ctx := context.Background()
	at := func(d int) time.Time { return time.Date(2024, 1, d, 10, 0, 0, 0, time.UTC) }

	for _, tr := range []domain.Trade{
		{ID: "t1", Code: "A", Side: domain.TradeSideBuy, Price: 10, Quantity: 100, TradedAt: at(1)},
		{ID: "t2", Code: "A", Side: domain.TradeSideSell, Price: 11, Quantity: 100, TradedAt: at(2)},
		{ID: "t3", Code: "B", Side: domain.TradeSideBuy, Price: 20, Quantity: 100, TradedAt: at(5)},
	} {
		require.NoError(t, store.Trades().Append(ctx, tr))
	}

	n, err := a.ArchiveTrades(ctx, at(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	key := "ledger/archive/trades/2024-01-03.jsonl"
	require.Contains(t, w.objects, key)
	assert.Equal(t, "application/x-ndjson", w.contentType[key])

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(w.objects[key]))
	for sc.Scan() {
		var tr domain.Trade
		require.NoError(t, json.Unmarshal(sc.Bytes(), &tr))
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"t1", "t2"}, ids)

	// Archived trades stay in the ledger.
	all, err := store.Trades().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	entries, err := store.Audit().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.trades", entries[0].Event)
}

func TestArchiveTrades_NothingToArchive(t *testing.T) {
	a, w, _ := newTestArchiver(t, "")
	n, err := a.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.objects)
}

func TestSnapshotLedger(t *testing.T) {
	a, w, store := newTestArchiver(t, "")
	ctx := context.Background()
	require.NoError(t, store.Positions().Create(ctx, domain.Position{
		ID: "p1", Code: "A", CostPrice: 10, Quantity: 100, Status: domain.PositionStatusHolding, PlanIDs: []string{},
	}))

	taken := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	key, err := a.SnapshotLedger(ctx, taken)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/ledger-20240304T050607Z.json", key)
	assert.Zero(t, w.multiparts)

	var snap LedgerSnapshot
	require.NoError(t, json.Unmarshal(w.objects[key], &snap))
	assert.True(t, taken.Equal(snap.TakenAt))
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "p1", snap.Positions[0].ID)
	assert.Empty(t, snap.Trades)
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{endpoint: "localhost:9000", want: "http://localhost:9000"},
		{endpoint: "s3.example.com", useSSL: true, want: "https://s3.example.com"},
		{endpoint: "http://minio:9000", useSSL: true, want: "http://minio:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, normaliseEndpoint(tt.endpoint, tt.useSSL))
		})
	}
}
