package domain

import (
	"context"
	"time"
)

// PriceCache remembers the last successful quote per instrument code.
type PriceCache interface {
	SetPrice(ctx context.Context, code string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, code string) (float64, time.Time, error)
	GetPrices(ctx context.Context, codes []string) (map[string]float64, error)
}

// RateLimiter provides request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides mutual exclusion for ledger writers.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
