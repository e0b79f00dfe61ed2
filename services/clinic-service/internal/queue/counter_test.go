package queue

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicflow/services/clinic-service/internal/model"
	"github.com/redis/go-redis/v9"
)

func TestMemoryCounter_ConcurrentAndDropsOldDays(t *testing.T) {
	c := NewMemoryCounter()
	day, _ := model.ParseDate("2025-03-10")
	ctx := context.Background()

	var wg sync.WaitGroup
	seen := make(chan int, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := c.Next(ctx, "clinic-1", day)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int]bool{}
	for n := range seen {
		if unique[n] {
			t.Fatalf("duplicate number %d", n)
		}
		unique[n] = true
	}
	if len(unique) != 100 || !unique[1] || !unique[100] {
		t.Fatalf("expected 1..100, got %d values", len(unique))
	}

	next, _ := model.ParseDate("2025-03-11")
	if n, _ := c.Next(ctx, "clinic-1", next); n != 1 {
		t.Fatalf("expected 1 on a new day, got %d", n)
	}
	if len(c.counts) != 1 {
		t.Fatalf("expected previous day pruned, have %d keys", len(c.counts))
	}
}

// Needs a live Redis; set REDIS_URL to run.
func TestRedisCounter_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	c := NewRedisCounter(rdb, "test:queue:"+uuid.NewString())
	day, _ := model.ParseDate("2025-03-10")
	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := c.Next(ctx, "clinic-1", day)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
}
