package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLimiter(DefaultLimits(), NewRedisStore(client)), mr
}

func TestRedisStoreMinuteLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newRedisLimiter(t)

	for i := 0; i < 10; i++ {
		if err := l.Check(ctx, "tok"); err != nil {
			t.Fatalf("admission %d refused: %v", i+1, err)
		}
		if err := l.Record(ctx, "tok"); err != nil {
			t.Fatal(err)
		}
	}

	err := l.Check(ctx, "tok")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Window != "minute" {
		t.Errorf("expected minute window, got %s", le.Window)
	}
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t)

	for i := 0; i < 10; i++ {
		_ = l.Record(ctx, "tok")
	}
	if err := l.Check(ctx, "tok"); err == nil {
		t.Fatal("expected minute limit")
	}

	mr.FastForward(61 * time.Second)
	if err := l.Check(ctx, "tok"); err != nil {
		t.Errorf("expected admission after minute key expired: %v", err)
	}
}

func TestRedisStoreCooldown(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t)

	if err := l.StartCooldown(ctx, "tok"); err != nil {
		t.Fatal(err)
	}

	err := l.Check(ctx, "tok")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Window != "cooldown" {
		t.Errorf("expected cooldown window, got %s", le.Window)
	}

	mr.FastForward(11 * time.Minute)
	if err := l.Check(ctx, "tok"); err != nil {
		t.Errorf("expected admission after cooldown expired: %v", err)
	}
}
