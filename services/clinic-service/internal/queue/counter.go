package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Counter hands out queue numbers. Next must increment and reserve in one
// atomic step per (clinic, day); the first call for a day returns 1.
type Counter interface {
	Next(ctx context.Context, clinicID string, day model.Date) (int, error)
}

type counterKey struct {
	clinicID string
	day      model.Date
}

// MemoryCounter serves a single process.
type MemoryCounter struct {
	mu     sync.Mutex
	latest model.Date
	counts map[counterKey]int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: map[counterKey]int{}}
}

func (c *MemoryCounter) Next(_ context.Context, clinicID string, day model.Date) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if day.After(c.latest) {
		// Earlier days can no longer receive check-ins.
		for k := range c.counts {
			if k.day.Before(day) {
				delete(c.counts, k)
			}
		}
		c.latest = day
	}
	key := counterKey{clinicID: clinicID, day: day}
	c.counts[key]++
	return c.counts[key], nil
}

var redisCounterScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisCounter shares numbering across replicas. Keys expire two days after
// their first use.
type RedisCounter struct {
	rdb    redis.Scripter
	prefix string
	ttl    time.Duration
}

func NewRedisCounter(rdb redis.Scripter, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "clinic:queue"
	}
	return &RedisCounter{rdb: rdb, prefix: prefix, ttl: 48 * time.Hour}
}

func (c *RedisCounter) key(clinicID string, day model.Date) string {
	return c.prefix + ":" + clinicID + ":" + day.String()
}

func (c *RedisCounter) Next(ctx context.Context, clinicID string, day model.Date) (int, error) {
	res, err := redisCounterScript.Run(ctx, c.rdb, []string{c.key(clinicID, day)}, c.ttl.Milliseconds()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue counter: %w", err)
	}
	switch v := res.(type) {
	case int64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("queue counter: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("queue counter: unexpected script result type %T", res)
	}
}
