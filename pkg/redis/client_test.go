package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.CartKey("cust-1"); got != "vh:cart:cust-1" {
		t.Fatalf("unexpected cart key %s", got)
	}
	if got := client.CartLockKey("cust-1"); got != "vh:lock:cart:cust-1" {
		t.Fatalf("unexpected cart lock key %s", got)
	}
	if got := client.IdempotencyKey("checkout", "key-1"); got != "vh:idempotency:checkout:key-1" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.IdempotencyKey("checkout", ""); got != "vh:idempotency:checkout" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := client.CronLockKey("reservation_sweep"); got != "vh:cron:lock:reservation_sweep" {
		t.Fatalf("unexpected cron lock key %s", got)
	}
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	if err := client.Set(ctx, "vh:test", "value", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, "vh:test")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "value" {
		t.Fatalf("expected stored value, got %q", got)
	}
	if err := client.Del(ctx, "vh:test"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "vh:test"); !IsNil(err) {
		t.Fatalf("expected nil sentinel after delete, got %v", err)
	}
}

func TestMutexAcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	first := client.NewMutex("vh:lock:cart:cust-1", time.Second)
	if err := first.Acquire(ctx, time.Millisecond, 0); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	second := client.NewMutex("vh:lock:cart:cust-1", time.Second)
	ok, err := second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("try acquire errored: %v", err)
	}
	if ok {
		t.Fatalf("second acquire should be rejected while held")
	}

	// Releasing a lock you never won must not free the holder's lock.
	if err := second.Release(ctx); err != nil {
		t.Fatalf("foreign release errored: %v", err)
	}
	ok, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("try acquire errored: %v", err)
	}
	if ok {
		t.Fatalf("lock should still be held by the first owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("owner release failed: %v", err)
	}
	ok, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("try acquire errored: %v", err)
	}
	if !ok {
		t.Fatalf("lock should be free after owner release")
	}
}

func TestMutexAcquireRetryBudget(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	holder := client.NewMutex("vh:lock:cart:cust-2", time.Second)
	if ok, _ := holder.TryAcquire(ctx); !ok {
		t.Fatalf("holder should win a free lock")
	}

	waiter := client.NewMutex("vh:lock:cart:cust-2", time.Second)
	if err := waiter.Acquire(ctx, time.Millisecond, 2); err == nil {
		t.Fatalf("expected conflict after retry budget")
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	_, ok := m.data[key]
	return redis.NewBoolResult(ok, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
