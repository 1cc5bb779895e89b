package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfitService_Realized(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	l.buy(t, "600519", 10, 100, day(1))
	_, pos := l.buy(t, "600519", 12, 100, day(2))
	at := day(3)
	_, _, err := l.trades.ExecuteSell(ctx, SellRequest{PositionID: pos.ID, Price: 15, Quantity: 150, TradedAt: &at})
	require.NoError(t, err)

	// Flat 5 on the sell: 100*5 - 5 - 5*100/150 and 50*3 - 2.5 - 5*50/150.
	report, err := l.profits.Realized(ctx, "")
	require.NoError(t, err)
	require.Len(t, report.Lots, 2)
	assert.InDelta(t, 491.67, report.Lots[0].Profit, 1e-9)
	assert.InDelta(t, 145.83, report.Lots[1].Profit, 1e-9)
	assert.InDelta(t, 637.5, report.Total, 1e-9)

	other, err := l.profits.Realized(ctx, "000001")
	require.NoError(t, err)
	assert.Zero(t, other.Total)
	assert.NotNil(t, other.Lots)
}

func TestProfitService_Unrealized(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	l.buy(t, "600519", 10, 100, day(1))
	l.buy(t, "000001", 20, 100, day(1))
	require.NoError(t, l.quotes.UpdatePrices(ctx, map[string]float64{"600519": 12}))

	report, err := l.profits.Unrealized(ctx)
	require.NoError(t, err)
	require.Len(t, report.Lines, 2)
	assert.InDelta(t, 195.0, report.Total, 1e-9)

	byCode := map[string]UnrealizedLine{}
	for _, line := range report.Lines {
		byCode[line.Code] = line
	}
	assert.True(t, byCode["600519"].Priced)
	assert.InDelta(t, 1200.0, byCode["600519"].MarketValue, 1e-9)
	assert.InDelta(t, 195.0, byCode["600519"].Profit, 1e-9)
	assert.False(t, byCode["000001"].Priced)
	assert.Zero(t, byCode["000001"].Profit)
}
