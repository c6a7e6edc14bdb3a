package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemory_FixedWindow(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := NewMemory(10, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := m.Allow(ctx, "ip:1", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	d, err := m.Allow(ctx, "ip:1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("third request allowed")
	}
	if !d.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected reset %v", d.ResetAt)
	}

	now = now.Add(61 * time.Second)
	d, err = m.Allow(ctx, "ip:1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !d.Allowed || d.Remaining != 1 {
		t.Fatalf("new window: allowed=%v remaining=%d", d.Allowed, d.Remaining)
	}
}

func TestMemory_Capacity(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := NewMemory(1, func() time.Time { return now })
	ctx := context.Background()

	if _, err := m.Allow(ctx, "a", 5, time.Minute); err != nil {
		t.Fatalf("allow a: %v", err)
	}
	if _, err := m.Allow(ctx, "b", 5, time.Minute); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.Allow(ctx, "b", 5, time.Minute); err != nil {
		t.Fatalf("allow after expiry: %v", err)
	}
}

func TestMemory_ZeroLimitDisables(t *testing.T) {
	d, err := NewMemory(0, nil).Allow(context.Background(), "k", 0, time.Second)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !d.Allowed {
		t.Fatal("zero limit should not deny")
	}
}
