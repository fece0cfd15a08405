package middleware

import (
	"net/http"
	apperrors "reservo/pkg/errors"
	"reservo/pkg/logger"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CallerRateLimiter is a token bucket per caller: limit requests per window,
// refilled evenly, with bursts of up to limit.
type CallerRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	window   time.Duration
	log      *logger.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCallerRateLimiter(limit int, window time.Duration, log *logger.Logger) *CallerRateLimiter {
	limiter := newCallerRateLimiter(limit, window, log, time.Now)
	go limiter.cleanup(time.Hour)
	return limiter
}

func newCallerRateLimiter(limit int, window time.Duration, log *logger.Logger, now func() time.Time) *CallerRateLimiter {
	return &CallerRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(max(limit, 1))),
		burst:    max(limit, 1),
		window:   window,
		log:      log,
		now:      now,
		stopCh:   make(chan struct{}),
	}
}

func (rl *CallerRateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

// evictIdle drops callers idle for longer than a window; their buckets are full again anyway.
func (rl *CallerRateLimiter) evictIdle() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window {
			delete(rl.visitors, key)
		}
	}
}

func (rl *CallerRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *CallerRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *CallerRateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// CallerRateLimit limits by the identity attached by Identity, falling back to
// the raw header when mounted ahead of it.
func CallerRateLimit(limiter *CallerRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderUserID)
			if caller, ok := CallerFromContext(r.Context()); ok {
				key = caller.UserID
			}

			if !limiter.Allow(key) {
				rejectRateLimited(w, limiter, r, key)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, limiter *CallerRateLimiter, r *http.Request, key string) {
	limiter.log.Warn("Rate limit exceeded",
		"request_id", requestID(r),
		"user_id", key,
		"path", r.URL.Path,
	)

	retryAfter := max(int(time.Duration(float64(time.Second)/float64(limiter.limit)).Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	_ = apperrors.WriteError(w, apperrors.RateLimited("Rate limit exceeded"))
}
