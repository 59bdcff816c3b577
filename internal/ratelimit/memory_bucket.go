package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryTokenBucket is a per-process Limiter for single-instance
// deployments without Redis.
type MemoryTokenBucket struct {
	mu       sync.Mutex
	capacity int
	limit    rate.Limit
	buckets  map[string]*rate.Limiter
	now      func() time.Time
}

func NewMemoryTokenBucket(capacity int, window time.Duration) (*MemoryTokenBucket, error) {
	if err := checkBucket(capacity, window); err != nil {
		return nil, err
	}
	return &MemoryTokenBucket{
		capacity: capacity,
		limit:    rate.Limit(float64(capacity) / window.Seconds()),
		buckets:  make(map[string]*rate.Limiter),
		now:      time.Now,
	}, nil
}

func (l *MemoryTokenBucket) AllowN(_ context.Context, subject string, cost int) (Decision, error) {
	subject = normalizeSubject(subject)
	n := int(clampCost(cost, int64(l.capacity)))
	now := l.now()

	l.mu.Lock()
	lim, ok := l.buckets[subject]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.capacity)
		l.buckets[subject] = lim
	}
	l.mu.Unlock()

	r := lim.ReserveN(now, n)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Remaining: int64(lim.TokensAt(now)), RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Remaining: int64(lim.TokensAt(now))}, nil
}
