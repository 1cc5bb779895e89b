package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

func TestCreatePlan_RequiresHoldingPosition(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()

	_, err := l.plans.CreatePricePlan(ctx, "missing", fp(12), nil, false)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	_, pos := l.buy(t, "600519", 10, 100, day(2))
	_, _, err = l.trades.ExecuteSell(ctx, SellRequest{PositionID: pos.ID, Price: 11, Quantity: 100})
	require.NoError(t, err)

	_, err = l.plans.CreatePricePlan(ctx, pos.ID, fp(12), nil, false)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestCreatePlan_LinksPosition(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	_, pos := l.buy(t, "600519", 10, 100, day(2))

	price, err := l.plans.CreatePricePlan(ctx, pos.ID, fp(12), fp(9), false)
	require.NoError(t, err)
	pct, err := l.plans.CreatePercentagePlan(ctx, pos.ID, fp(0.2), nil, true)
	require.NoError(t, err)

	assert.Equal(t, domain.PlanStatusActive, price.Status)
	assert.Equal(t, domain.TriggerKindPercentage, pct.Kind)

	got, err := l.positions.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{price.ID, pct.ID}, got.PlanIDs)

	listed, err := l.plans.List(ctx, pos.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCreatePlan_InvalidConfiguration(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	_, pos := l.buy(t, "600519", 10, 100, day(2))

	_, err := l.plans.CreatePricePlan(ctx, pos.ID, nil, nil, false)
	assert.ErrorIs(t, err, domain.ErrInvalidTriggerConfiguration)

	_, err = l.plans.CreatePercentagePlan(ctx, pos.ID, fp(-0.1), nil, false)
	assert.ErrorIs(t, err, domain.ErrInvalidTriggerConfiguration)

	got, err := l.positions.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PlanIDs)
}

func TestEvaluateAll(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	_, pos := l.buy(t, "600519", 10, 100, day(2))

	clock := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	l.plans.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	advisory, err := l.plans.CreatePricePlan(ctx, pos.ID, fp(12), fp(9), false)
	require.NoError(t, err)
	auto, err := l.plans.CreatePercentagePlan(ctx, pos.ID, nil, fp(0.05), true)
	require.NoError(t, err)

	events, err := l.plans.EvaluateAll(ctx, map[string]float64{"600519": 9})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, advisory.ID, events[0].PlanID)
	assert.Equal(t, domain.TriggerStopLoss, events[0].Trigger)
	assert.False(t, events[0].Executed)
	assert.Equal(t, int64(100), events[0].SuggestedQuantity)

	assert.Equal(t, auto.ID, events[1].PlanID)
	assert.Equal(t, domain.TriggerStopLoss, events[1].Trigger)
	assert.True(t, events[1].Executed)

	stillActive, err := l.plans.Get(ctx, advisory.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusActive, stillActive.Status)

	executed, err := l.plans.Get(ctx, auto.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusExecuted, executed.Status)
	assert.NotNil(t, executed.ClosedAt)

	assert.Equal(t, events, l.sink.all())

	stream, err := l.bus.StreamRead(ctx, domain.StreamTriggers, "0", 10)
	require.NoError(t, err)
	assert.Len(t, stream, 2)

	// The executed plan never fires again; the advisory one does.
	again, err := l.plans.EvaluateAll(ctx, map[string]float64{"600519": 9})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, advisory.ID, again[0].PlanID)
}

func TestEvaluateAll_SkipsUnpricedAndUntriggered(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	_, a := l.buy(t, "600519", 10, 100, day(2))
	_, b := l.buy(t, "000001", 20, 100, day(2))

	_, err := l.plans.CreatePricePlan(ctx, a.ID, fp(12), nil, true)
	require.NoError(t, err)
	_, err = l.plans.CreatePricePlan(ctx, b.ID, fp(25), fp(15), true)
	require.NoError(t, err)

	events, err := l.plans.EvaluateAll(ctx, map[string]float64{"000001": 20})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, l.sink.all())

	events, err = l.plans.EvaluateAll(ctx, map[string]float64{"600519": 12.5, "000001": 20})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "600519", events[0].Code)
	assert.Equal(t, domain.TriggerTakeProfit, events[0].Trigger)
}

func TestCancelPlan(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	_, pos := l.buy(t, "600519", 10, 100, day(2))
	plan, err := l.plans.CreatePricePlan(ctx, pos.ID, fp(12), nil, false)
	require.NoError(t, err)

	cancelled, err := l.plans.Cancel(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusCancelled, cancelled.Status)

	_, err = l.plans.Get(ctx, plan.ID)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	got, err := l.positions.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PlanIDs)

	_, err = l.plans.Cancel(ctx, plan.ID)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestExecutePlan(t *testing.T) {
	l := newTestLedger(t, flatFee())
	ctx := context.Background()
	_, pos := l.buy(t, "600519", 10, 100, day(2))
	plan, err := l.plans.CreatePricePlan(ctx, pos.ID, fp(12), nil, false)
	require.NoError(t, err)

	executed, err := l.plans.Execute(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStatusExecuted, executed.Status)

	_, err = l.plans.Execute(ctx, plan.ID)
	assert.ErrorIs(t, err, domain.ErrPlanNotActive)

	_, err = l.plans.Cancel(ctx, plan.ID)
	assert.ErrorIs(t, err, domain.ErrPlanNotActive)

	_, err = l.plans.Execute(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}
