package dnc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewService(NewMemoryRepo(), client)
	s.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return s, mr
}

func TestAddAndIsBlocked(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	if _, err := s.Add(ctx, "acc-1", " 15551234 ", "customer request"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	blocked, err := s.IsBlocked(ctx, "acc-1", "15551234")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatalf("number should be blocked")
	}

	// second add of the same number is rejected
	if _, err := s.Add(ctx, "acc-1", "15551234", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// other accounts are unaffected
	blocked, err = s.IsBlocked(ctx, "acc-2", "15551234")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Fatalf("other account must not see the entry")
	}
}

func TestIsBlockedUsesCache(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestService(t)

	if _, err := s.Add(ctx, "acc-1", "15551234", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.IsBlocked(ctx, "acc-1", "15551234"); err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if got, err := mr.Get("dnc:acc-1:15551234"); err != nil || got != "1" {
		t.Fatalf("cache entry = %q, %v", got, err)
	}

	// stale cache answers until it expires or is invalidated
	if err := s.Remove(ctx, "acc-1", "15551234"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if mr.Exists("dnc:acc-1:15551234") {
		t.Fatalf("removal should invalidate the cache entry")
	}
	blocked, err := s.IsBlocked(ctx, "acc-1", "15551234")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Fatalf("number should no longer be blocked")
	}
}

func TestIsBlockedSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestService(t)

	if _, err := s.Add(ctx, "acc-1", "15551234", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	mr.Close()

	blocked, err := s.IsBlocked(ctx, "acc-1", "15551234")
	if err != nil {
		t.Fatalf("IsBlocked with redis down: %v", err)
	}
	if !blocked {
		t.Fatalf("repository answer should win when redis is down")
	}
}

func TestIsBlockedValidatesPhone(t *testing.T) {
	s := NewService(NewMemoryRepo(), nil)
	if _, err := s.IsBlocked(context.Background(), "acc-1", "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
