package v1

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/rhythm/store/cache"
)

const (
	limiterCapacity = 10000
	limiterIdleTTL  = 10 * time.Minute
)

// userLimiter keeps one token bucket per user. Buckets idle for longer than
// it takes them to refill are dropped, and at most capacity are kept.
type userLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache[int32, *rate.Limiter]
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

// newUserLimiter allows perMinute events per user with the given burst. A
// non-positive rate disables limiting.
func newUserLimiter(perMinute float64, burst, capacity int) *userLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	burst = max(burst, 1)

	idle := limiterIdleTTL
	if limit != rate.Inf {
		idle = max(idle, time.Duration(float64(burst)/float64(limit)*float64(time.Second)))
	}
	return &userLimiter{
		limiters: cache.New[int32, *rate.Limiter](cache.Config{DefaultTTL: idle, MaxItems: capacity}),
		limit:    limit,
		burst:    burst,
		idle:     idle,
	}
}

func (l *userLimiter) Allow(userID int32) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(userID)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
	}
	l.limiters.SetWithTTL(userID, limiter, l.idle)
	l.mu.Unlock()
	return limiter.Allow()
}

// Size returns the number of tracked users.
func (l *userLimiter) Size() int {
	return l.limiters.Size()
}
