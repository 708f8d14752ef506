package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type fakeCmdable struct {
	values map[string]string
}

func newFakeCmdable() *fakeCmdable {
	return &fakeCmdable{values: map[string]string{}}
}

func (f *fakeCmdable) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	cmd := goredis.NewBoolCmd(ctx)
	if _, exists := f.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = toString(value)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	cmd := goredis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return "1"
}

func TestSetNXFirstWinnerOnly(t *testing.T) {
	client := &Client{store: newFakeCmdable()}
	ctx := context.Background()

	key := client.IdempotencyKey("payment", "evt-1")
	set, err := client.SetNX(ctx, key, "1", time.Minute)
	if err != nil || !set {
		t.Fatalf("first SetNX should win: set=%v err=%v", set, err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Minute)
	if err != nil {
		t.Fatalf("second SetNX errored: %v", err)
	}
	if set {
		t.Fatal("second SetNX should lose")
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	set, _ = client.SetNX(ctx, key, "1", time.Minute)
	if !set {
		t.Fatal("SetNX should win again after Del")
	}
}

func TestIdempotencyKeyNamespacing(t *testing.T) {
	client := &Client{store: newFakeCmdable()}
	got := client.IdempotencyKey("payment", "evt-42")
	want := "dw:idempotency:payment:evt-42"
	if got != want {
		t.Fatalf("unexpected key %q, want %q", got, want)
	}
}
