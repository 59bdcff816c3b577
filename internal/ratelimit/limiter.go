// Package ratelimit meters API requests per user and route with token
// buckets held either in Redis or in process memory.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	errNonPositiveCapacity = errors.New("capacity must be positive")
	errNonPositiveWindow   = errors.New("window must be positive")
)

// Decision is the outcome of one AllowN call. Remaining is the whole number
// of tokens left after the call.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decides whether subject may spend cost tokens now.
type Limiter interface {
	AllowN(ctx context.Context, subject string, cost int) (Decision, error)
}

func checkBucket(capacity int, window time.Duration) error {
	if capacity <= 0 {
		return errNonPositiveCapacity
	}
	if window <= 0 {
		return errNonPositiveWindow
	}
	return nil
}

func normalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "anonymous"
	}
	return subject
}

// clampCost keeps cost within 1..capacity so a heavy request can still pass
// on a full bucket.
func clampCost(cost int, capacity int64) int64 {
	if cost < 1 {
		return 1
	}
	if int64(cost) > capacity {
		return capacity
	}
	return int64(cost)
}
