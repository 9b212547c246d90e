package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestAcquireConcurrencyCap_Limit(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	const key = "dialer:cap:camp1"
	for i := 0; i < 3; i++ {
		ok, err := AcquireConcurrencyCap(ctx, rdb, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("acquire %d: expected slot", i)
		}
	}

	ok, err := AcquireConcurrencyCap(ctx, rdb, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("acquire over limit: %v", err)
	}
	if ok {
		t.Fatalf("expected rejection at limit")
	}

	if err := ReleaseConcurrencyCap(ctx, rdb, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, key, 3, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected slot after release, ok=%v err=%v", ok, err)
	}
}

func TestAcquireConcurrencyCap_ValidatesInput(t *testing.T) {
	rdb, cleanup := newTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := AcquireConcurrencyCap(ctx, rdb, "", 1, time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := AcquireConcurrencyCap(ctx, rdb, "k", 1, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
