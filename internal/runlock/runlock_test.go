package runlock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/order-intake/internal/common"
)

func TestNoopAlwaysGrants(t *testing.T) {
	var l Locker = Noop{}
	for i := 0; i < 2; i++ {
		rel, err := l.Acquire(context.Background(), "grain")
		if err != nil {
			t.Fatal(err)
		}
		if err := rel(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRedisLockIsExclusive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	l, rdb, err := Connect(ctx, common.RedisConfig{Addr: addr, LockTTL: 5 * time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()

	key := "test-" + uuid.NewString()
	rel, err := l.Acquire(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Acquire(ctx, key); !errors.Is(err, common.ErrRunInProgress) {
		t.Fatalf("second acquire = %v", err)
	}
	if err := rel(ctx); err != nil {
		t.Fatal(err)
	}
	rel, err = l.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	_ = rel(ctx)
}
