package redis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/vendorlution-backend/pkg/config"
)

func TestMarkOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.WebhookKey("ozow", "txn-1", "Complete")

	first, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatalf("expected first mark to win")
	}
	second, err := client.MarkOnce(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second {
		t.Fatalf("expected duplicate mark to lose")
	}
	if mock.ttls[key] != time.Hour {
		t.Fatalf("expected ttl to be forwarded, got %s", mock.ttls[key])
	}
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("checkout", "abc")

	if err := client.Set(ctx, key, "stored", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "stored" {
		t.Fatalf("expected stored value, got %q", value)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != Nil {
		t.Fatalf("expected Nil after delete, got %v", err)
	}
}

func TestDeleteIfValueOnlyRemovesOwnedKey(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker")
	if err := client.Set(ctx, key, "owner-a", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	deleted, err := client.DeleteIfValue(ctx, key, "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.DeleteIfValue(ctx, key, "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner should delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := client.Get(ctx, key); err != Nil {
		t.Fatalf("expected key gone, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "vdl:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.WebhookKey("peach", "ref", "SUCCESS"); got != "vdl:webhook:peach:ref:success" {
		t.Fatalf("unexpected webhook key %s", got)
	}
	if got := client.WebhookKey("peach", "ref", ""); got != "vdl:webhook:peach:ref" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := client.LockKey("cron"); got != "vdl:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if _, err := client.SetNX(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client: %v", err)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
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
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected eval arity"))
	}
	if m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(m.data, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestLongKeyPartsAreDigested(t *testing.T) {
	client := &Client{}
	scope := "user-1|POST|/api/v1/orders/" + strings.Repeat("x", 120) + "/payments"
	key := client.IdempotencyKey(scope, "abc")
	if strings.Contains(key, "xxxx") {
		t.Fatalf("long scope should be digested, got %s", key)
	}
	if key != client.IdempotencyKey(scope, "abc") {
		t.Fatalf("digest must be stable")
	}
	if !strings.HasPrefix(key, "vdl:idempotency:") || !strings.HasSuffix(key, ":abc") {
		t.Fatalf("unexpected key layout %s", key)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing address error")
	}
}
