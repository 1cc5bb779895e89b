package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		parts  []string
		want   string
	}{
		{name: "no prefix", parts: []string{"price", "600519"}, want: "price:600519"},
		{name: "prefixed", prefix: "stockledger", parts: []string{"lock", "ledger"}, want: "stockledger:lock:ledger"},
		{name: "single part", prefix: "sl", parts: []string{"stream:triggers"}, want: "sl:stream:triggers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
			defer rdb.Close()
			c := NewFromRedis(rdb, tt.prefix)
			assert.Equal(t, tt.want, c.key(tt.parts...))
		})
	}
}
