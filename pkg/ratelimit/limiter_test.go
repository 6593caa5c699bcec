package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// clock is a controllable time source for window tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(limits Limits) (*Limiter, *clock) {
	clk := newClock()
	store := NewMemoryStore()
	store.SetClock(clk.Now)
	return NewLimiter(limits, store), clk
}

func TestMinuteLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(DefaultLimits())

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
	if !strings.Contains(le.Message, "10/minute") {
		t.Errorf("unexpected message: %s", le.Message)
	}
}

func TestMinuteWindowResets(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		_ = l.Record(ctx, "tok")
	}
	if err := l.Check(ctx, "tok"); err == nil {
		t.Fatal("expected minute limit")
	}

	clk.Advance(61 * time.Second)
	if err := l.Check(ctx, "tok"); err != nil {
		t.Errorf("expected admission after minute window rolled: %v", err)
	}
}

func TestHourLimitOutlivesMinuteWindow(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(Limits{PerMinute: 10, PerHour: 20, PerDay: 500})

	// Two bursts of 10, a minute apart, exhaust the hour budget.
	for burst := 0; burst < 2; burst++ {
		for i := 0; i < 10; i++ {
			_ = l.Record(ctx, "tok")
		}
		clk.Advance(61 * time.Second)
	}

	err := l.Check(ctx, "tok")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Window != "hour" {
		t.Errorf("expected hour window, got %s", le.Window)
	}
}

func TestCheckHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(DefaultLimits())

	// Repeated checks without Record never consume quota.
	for i := 0; i < 50; i++ {
		if err := l.Check(ctx, "tok"); err != nil {
			t.Fatalf("check %d refused: %v", i+1, err)
		}
	}
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLimiter(DefaultLimits())

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
	if !strings.Contains(le.Message, "minutes") {
		t.Errorf("unexpected message: %s", le.Message)
	}

	clk.Advance(11 * time.Minute)
	if err := l.Check(ctx, "tok"); err != nil {
		t.Errorf("expected admission after cooldown: %v", err)
	}
}

func TestLimitsCheckedBeforeCooldown(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(DefaultLimits())

	// Both the minute limit and a cooldown apply; minute wins.
	for i := 0; i < 10; i++ {
		_ = l.Record(ctx, "tok")
	}
	_ = l.StartCooldown(ctx, "tok")

	err := l.Check(ctx, "tok")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Window != "minute" {
		t.Errorf("expected minute window to win, got %s", le.Window)
	}
}

func TestTokensAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(DefaultLimits())

	for i := 0; i < 10; i++ {
		_ = l.Record(ctx, "tok-a")
	}

	if err := l.Check(ctx, "tok-b"); err != nil {
		t.Errorf("unrelated token refused: %v", err)
	}
}
