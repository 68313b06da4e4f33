package cart

import (
	"context"
	"os"
	"testing"

	"storefront/internal/migrate"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func exerciseStore(ctx context.Context, t *testing.T, store Store, key string) {
	t.Helper()
	if _, found, err := store.Get(ctx, key); err != nil || found {
		t.Fatalf("expected missing key, found=%v err=%v", found, err)
	}
	if err := store.Set(ctx, key, `[{"id":"a"}]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, key, `[]`); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, found, err := store.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got != `[]` {
		t.Fatalf("expected overwritten value, got %q", got)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(context.Background(), t, NewMemory(), "cart-storage:mem")
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("db unreachable: %v", err)
	}
	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM cart_storage WHERE key = 'cart-storage:pg-test'`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	exerciseStore(ctx, t, NewPostgres(pool, nil), "cart-storage:pg-test")
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	client.Del(ctx, "cart-storage:redis-test")
	exerciseStore(ctx, t, NewRedis(client, nil), "cart-storage:redis-test")
}
