// internal/handlers/middleware/ratelimit.go
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

// RateLimiter limits requests per client IP
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window for each client and evicts
// idle clients until ctx is done.
func NewRateLimiter(ctx context.Context, requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		limiters: make(map[string]*clientLimiter),
	}
	go rl.evict(ctx)
	return rl
}

// Allow reports whether the client may proceed
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	cl, ok := rl.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

// Middleware rejects clients over their limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(time.Duration(float64(time.Second) / float64(rl.limit)).Seconds()) + 1)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) evict(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for client, cl := range rl.limiters {
				if now.Sub(cl.lastSeen) > limiterIdle {
					delete(rl.limiters, client)
				}
			}
			rl.mu.Unlock()
		}
	}
}
