package httputil

import (
	"context"
	"testing"
	"time"
)

func TestSemaphoreTryAcquire(t *testing.T) {
	s := NewSemaphore(2)

	if !s.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	if !s.TryAcquire() {
		t.Fatal("second acquire should succeed")
	}
	if s.TryAcquire() {
		t.Fatal("third acquire should fail at capacity 2")
	}
	if s.DroppedCount() != 1 {
		t.Errorf("expected 1 drop, got %d", s.DroppedCount())
	}

	s.Release()
	if !s.TryAcquire() {
		t.Fatal("acquire after release should succeed")
	}
}

func TestSemaphoreAcquireContextCancel(t *testing.T) {
	s := NewSemaphore(1)
	if err := s.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire on empty semaphore failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Acquire(ctx); err == nil {
		t.Error("expected context error on full semaphore")
	}
}
