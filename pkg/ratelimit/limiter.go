package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Limits holds the admission thresholds for one identity.
type Limits struct {
	PerMinute int64
	PerHour   int64
	PerDay    int64
	Cooldown  time.Duration // started when a session ends, not on refusal
}

// DefaultLimits are the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		PerMinute: 10,
		PerHour:   100,
		PerDay:    500,
		Cooldown:  10 * time.Minute,
	}
}

// LimitError is returned when an admission check fails. Message is safe to
// show the visitor.
type LimitError struct {
	Window  string // "minute", "hour", "day", or "cooldown"
	Message string
}

func (e *LimitError) Error() string {
	return e.Message
}

// Limiter applies Limits against a BucketStore.
type Limiter struct {
	limits Limits
	store  BucketStore
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(limits Limits, store BucketStore) *Limiter {
	return &Limiter{limits: limits, store: store}
}

// Check tests whether the identity may start a session. Windows are checked
// minute, then hour, then day, then cooldown; the first failing check wins
// and nothing is counted. Store errors are returned as-is so the caller can
// decide whether to fail open or closed.
func (l *Limiter) Check(ctx context.Context, token string) error {
	minute, hour, day, err := l.store.Counts(ctx, token)
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}

	if minute >= l.limits.PerMinute {
		return &LimitError{
			Window:  "minute",
			Message: fmt.Sprintf("Rate limit: %d/minute exceeded. Wait 1 minute.", l.limits.PerMinute),
		}
	}
	if hour >= l.limits.PerHour {
		return &LimitError{
			Window:  "hour",
			Message: fmt.Sprintf("Rate limit: %d/hour exceeded. Try again later.", l.limits.PerHour),
		}
	}
	if day >= l.limits.PerDay {
		return &LimitError{
			Window:  "day",
			Message: fmt.Sprintf("Rate limit: %d/day exceeded. Try again tomorrow.", l.limits.PerDay),
		}
	}

	remaining, err := l.store.Cooldown(ctx, token)
	if err != nil {
		return fmt.Errorf("rate limit store: %w", err)
	}
	if remaining > 0 {
		mins := int64(math.Ceil(remaining.Minutes()))
		return &LimitError{
			Window:  "cooldown",
			Message: fmt.Sprintf("Cooldown: Please wait %d more minutes before starting a new session.", mins),
		}
	}

	return nil
}

// Record counts one successful admission. Called only after a session is
// actually created; refused attempts never consume quota.
func (l *Limiter) Record(ctx context.Context, token string) error {
	return l.store.Incr(ctx, token)
}

// StartCooldown begins the post-session cooldown for the identity.
func (l *Limiter) StartCooldown(ctx context.Context, token string) error {
	if l.limits.Cooldown <= 0 {
		return nil
	}
	return l.store.StartCooldown(ctx, token, l.limits.Cooldown)
}
