package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/cache/memory"
	"github.com/alanyoungcy/stockledger/internal/config"
	"github.com/alanyoungcy/stockledger/internal/service"
	"github.com/alanyoungcy/stockledger/internal/store/jsonfile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWire_LocalBackends(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		checks  int
	}{
		{name: "json", backend: "json", checks: 0},
		{name: "sqlite", backend: "sqlite", checks: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.Defaults()
			cfg.Store.Backend = tt.backend
			cfg.Store.JSONPath = filepath.Join(dir, "ledger.json")
			cfg.Store.SQLitePath = filepath.Join(dir, "ledger.db")
			ctx := context.Background()

			deps, cleanup, err := Wire(ctx, &cfg, testLogger())
			require.NoError(t, err)
			defer cleanup()

			assert.Len(t, deps.HealthChecks, tt.checks)
			assert.Nil(t, deps.Archiver)
			assert.IsType(t, &memory.LockManager{}, deps.LockManager)
			assert.False(t, deps.Notifier.Enabled())
			if tt.backend == "json" {
				assert.IsType(t, &jsonfile.PriceCache{}, deps.PriceCache)
			} else {
				assert.IsType(t, &memory.PriceCache{}, deps.PriceCache)
			}

			svc := BuildServices(&cfg, deps, testLogger())
			_, pos, err := svc.Trades.ExecuteBuy(ctx, service.BuyRequest{Code: "600519", Price: 10, Quantity: 100})
			require.NoError(t, err)

			got, err := svc.Positions.Get(ctx, pos.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(100), got.Quantity)
			assert.InDelta(t, 5.23, got.Commission, 1e-9)
		})
	}
}

func TestWire_NotifierSink(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.JSONPath = filepath.Join(t.TempDir(), "ledger.json")
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:0/webhook"

	deps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.True(t, deps.Notifier.Enabled())
}

func TestCommissionCalculator(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.CommissionConfig
		want float64
	}{
		{name: "fixed plus ratio", cfg: config.CommissionConfig{Strategy: "fixed_plus_ratio", Fixed: 5, Ratio: 0.00023, Floor: 5}, want: 5.23},
		{name: "ratio only hits floor", cfg: config.CommissionConfig{Strategy: "ratio_only", Ratio: 0.00023, Floor: 5}, want: 5},
		{name: "ratio only above floor", cfg: config.CommissionConfig{Strategy: "ratio_only", Ratio: 0.01, Floor: 5}, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 100 shares at 10.
			assert.InDelta(t, tt.want, commissionCalculator(tt.cfg).Calculate(10, 100), 1e-9)
		})
	}
}
