package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	c := NewPriceCache()
	ts := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	_, _, err := c.GetPrice(ctx, "600519")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetPrice(ctx, "600519", 12.5, ts))
	price, got, err := c.GetPrice(ctx, "600519")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, price, 1e-9)
	assert.Equal(t, ts, got)

	prices, err := c.GetPrices(ctx, []string{"600519", "000001"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"600519": 12.5}, prices)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	l := NewLockManager()
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	unlock, err := l.Acquire(ctx, "ledger", time.Second)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "ledger", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := l.Acquire(ctx, "other", time.Second)
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := l.Acquire(ctx, "ledger", time.Second)
	require.NoError(t, err)

	// An expired entry can be taken over; the stale release must not
	// drop the new holder.
	now = now.Add(2 * time.Second)
	takeover, err := l.Acquire(ctx, "ledger", time.Second)
	require.NoError(t, err)
	again()
	_, err = l.Acquire(ctx, "ledger", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	takeover()
}

func TestSignalBus_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewSignalBus(10)

	ch, err := bus.Subscribe(ctx, domain.ChannelPrices)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte("ignored")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelPrices, []byte(`{"code":"A"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"code":"A"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSignalBus_Streams(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus(3)

	for _, p := range []string{"a", "b", "c", "d"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamTriggers, []byte(p)))
	}

	all, err := bus.StreamRead(ctx, domain.StreamTriggers, "0", 0)
	require.NoError(t, err)
	require.Len(t, all, 3, "stream trimmed to max length")
	assert.Equal(t, "b", string(all[0].Payload))
	assert.Equal(t, "2", all[0].ID)

	after, err := bus.StreamRead(ctx, domain.StreamTriggers, all[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "d", string(after[0].Payload))

	limited, err := bus.StreamRead(ctx, domain.StreamTriggers, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = bus.StreamRead(ctx, domain.StreamTriggers, "not-a-number", 1)
	assert.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	r := NewRateLimiter()

	for i := 0; i < 3; i++ {
		ok, err := r.Allow(ctx, "api:1.2.3.4", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}
	ok, err := r.Allow(ctx, "api:1.2.3.4", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Allow(ctx, "api:5.6.7.8", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	ok, err = r.Allow(ctx, "api:1.2.3.4", 0, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "non-positive limit disables limiting")
}

func TestRateLimiter_ChangedLimitGetsFreshBucket(t *testing.T) {
	ctx := context.Background()
	r := NewRateLimiter()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := r.Allow(ctx, "api:1.2.3.4", 2, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := r.Allow(ctx, "api:1.2.3.4", 2, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	tests := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{name: "new limit", limit: 5, window: time.Hour},
		{name: "new window", limit: 5, window: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.Allow(ctx, "api:1.2.3.4", tt.limit, tt.window)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	ctx := context.Background()
	r := NewRateLimiter()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		_, err := r.Allow(ctx, fmt.Sprintf("api:10.0.0.%d", i), 10, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, r.Len())

	now = now.Add(30 * time.Second)
	_, err := r.Allow(ctx, "api:10.0.0.1", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 50, r.Len(), "nothing idle for a full window yet")

	now = now.Add(time.Minute)
	_, err = r.Allow(ctx, "api:192.168.0.1", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	// A rebuilt bucket starts full.
	for i := 0; i < 10; i++ {
		ok, err := r.Allow(ctx, "api:10.0.0.1", 10, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
}
