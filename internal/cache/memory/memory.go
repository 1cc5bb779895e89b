// Package memory provides in-process implementations of the cache, lock,
// signal bus and rate limiter for single-process deployments and tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PriceCache keeps quotes in a map.
type PriceCache struct {
	mu     sync.RWMutex
	quotes map[string]quote
}

type quote struct {
	price float64
	ts    time.Time
}

// NewPriceCache returns an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]quote)}
}

// SetPrice stores the latest quote for code.
func (c *PriceCache) SetPrice(_ context.Context, code string, price float64, ts time.Time) error {
	c.mu.Lock()
	c.quotes[code] = quote{price: price, ts: ts}
	c.mu.Unlock()
	return nil
}

// GetPrice returns the quote for code or domain.ErrNotFound.
func (c *PriceCache) GetPrice(_ context.Context, code string) (float64, time.Time, error) {
	c.mu.RLock()
	q, ok := c.quotes[code]
	c.mu.RUnlock()
	if !ok {
		return 0, time.Time{}, fmt.Errorf("memory: price %s: %w", code, domain.ErrNotFound)
	}
	return q.price, q.ts, nil
}

// GetPrices returns the cached prices for codes, omitting unknown ones.
func (c *PriceCache) GetPrices(_ context.Context, codes []string) (map[string]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(codes))
	for _, code := range codes {
		if q, ok := c.quotes[code]; ok {
			out[code] = q.price
		}
	}
	return out, nil
}

// LockManager is a process-local lock table with expiry.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]lockEntry
	clock func() time.Time
}

type lockEntry struct {
	token   uint64
	expires time.Time
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lockEntry), clock: time.Now}
}

var lockSeq struct {
	sync.Mutex
	n uint64
}

func nextToken() uint64 {
	lockSeq.Lock()
	defer lockSeq.Unlock()
	lockSeq.n++
	return lockSeq.n
}

// Acquire takes key for at most ttl or returns domain.ErrLockHeld.
func (l *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, fmt.Errorf("memory: lock %s: %w", key, domain.ErrLockHeld)
	}
	token := nextToken()
	l.held[key] = lockEntry{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if e, ok := l.held[key]; ok && e.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}

// SignalBus fans payloads out to in-process subscribers and keeps bounded
// in-memory streams.
type SignalBus struct {
	mu      sync.RWMutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]domain.StreamMessage
	seq     map[string]int64
	maxLen  int
}

// NewSignalBus returns a bus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &SignalBus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]int64),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every current subscriber of channel. Slow
// subscribers miss messages rather than block the publisher.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload to stream with a monotonically increasing id.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[stream]++
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq[stream], 10),
		Payload: append([]byte(nil), payload...),
	})
	if over := len(b.streams[stream]) - b.maxLen; over > 0 {
		b.streams[stream] = b.streams[stream][over:]
	}
	return nil
}

// StreamRead returns up to count entries with an id greater than lastID.
// An empty or "0" lastID reads from the start.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	var after int64
	if lastID != "" && lastID != "0" && lastID != "0-0" {
		n, err := strconv.ParseInt(lastID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: stream read %s: bad id %q: %w", stream, lastID, err)
		}
		after = n
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseInt(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// RateLimiter keeps one token bucket per key. A bucket idle for a full
// window is back at full burst, so it is dropped and rebuilt on demand.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*bucket
	lastSweep time.Time
	clock     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewRateLimiter returns an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*bucket), clock: time.Now}
}

// Allow refills at limit per window with a burst of limit. A key whose
// limit or window changed gets a fresh bucket.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.sweep(now, window)

	b, ok := r.limiters[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			lim:    rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:  limit,
			window: window,
		}
		r.limiters[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1), nil
}

// sweep drops idle buckets, at most once per window.
func (r *RateLimiter) sweep(now time.Time, every time.Duration) {
	if now.Sub(r.lastSweep) < every {
		return
	}
	r.lastSweep = now
	for key, b := range r.limiters {
		if now.Sub(b.lastSeen) >= b.window {
			delete(r.limiters, key)
		}
	}
}

// Len reports how many keys currently hold a bucket.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

var (
	_ domain.PriceCache  = (*PriceCache)(nil)
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
	_ domain.RateLimiter = (*RateLimiter)(nil)
)
