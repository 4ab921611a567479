package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// idleAfter is how long a bucket may go unused before the janitor drops it.
const idleAfter = time.Hour

// RateLimiter is a per-client token bucket refilled continuously at rate
// tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration
	now     func() time.Time

	done chan struct{}
	stop sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows rate requests per window for each client key. It
// starts a janitor goroutine; call Stop to end it.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.janitor(5 * time.Minute)
	return rl
}

func (rl *RateLimiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, b := range rl.buckets {
				if now.Sub(b.seen) > idleAfter {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// Stop ends the janitor. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stop.Do(func() { close(rl.done) })
}

// Take spends one token for key. It returns the whole tokens left and, when
// the bucket is empty, how long until the next token.
func (rl *RateLimiter) Take(key string) (remaining int, wait time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	capacity := float64(rl.rate)
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: capacity, seen: now}
		rl.buckets[key] = b
	} else {
		refill := capacity * now.Sub(b.seen).Seconds() / rl.window.Seconds()
		b.tokens = math.Min(capacity, b.tokens+refill)
		b.seen = now
	}

	if b.tokens < 1 {
		perToken := rl.window.Seconds() / capacity
		wait = time.Duration((1 - b.tokens) * perToken * float64(time.Second))
		return 0, wait, false
	}
	b.tokens--
	return int(b.tokens), 0, true
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	_, _, ok := rl.Take(key)
	return ok
}

// GetClientKey identifies the caller: the principal's user when present,
// otherwise the remote address (chi's RealIP has already applied proxy headers).
func GetClientKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok && p.UserID != "" {
		return "user:" + p.UserID
	}
	return "ip:" + r.RemoteAddr
}

// RateLimitMiddleware answers 429 once a client has spent its bucket.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	limit := strconv.Itoa(limiter.rate)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetClientKey(r)
			remaining, wait, ok := limiter.Take(key)
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				log.WithFields(log.Fields{"client": key, "path": r.URL.Path}).Debug("rate limited")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
