package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each quote is
// stored at "quote:{code}" with fields "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	c   *Client
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c, rdb: c.Underlying()}
}

func (pc *PriceCache) quoteKey(code string) string {
	return pc.c.key("quote", code)
}

// SetPrice stores the latest price and timestamp for code.
func (pc *PriceCache) SetPrice(ctx context.Context, code string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, pc.quoteKey(code), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", code, err)
	}
	return nil
}

// GetPrice returns the latest price and timestamp for code, or
// domain.ErrNotFound when none is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, code string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.quoteKey(code)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", code, err)
	}
	price, ok, err := parseQuotePrice(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", code, err)
	}
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: price %s: %w", code, domain.ErrNotFound)
	}

	var ts time.Time
	if raw, ok := vals["ts"]; ok {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", code, err)
		}
		ts = time.Unix(0, nanos).UTC()
	}
	return price, ts, nil
}

// GetPrices returns cached prices for codes using a pipeline. Codes without
// a quote are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, codes []string) (map[string]float64, error) {
	if len(codes) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(codes))
	for _, code := range codes {
		cmds[code] = pipe.HGetAll(ctx, pc.quoteKey(code))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(codes))
	for code, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, ok, err := parseQuotePrice(vals); err == nil && ok {
			result[code] = price
		}
	}
	return result, nil
}

func parseQuotePrice(vals map[string]string) (float64, bool, error) {
	raw, ok := vals["price"]
	if !ok {
		return 0, false, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
