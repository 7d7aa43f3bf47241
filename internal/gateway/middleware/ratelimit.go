package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"finchat/internal/gateway/handlers"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained refill rate per client.
	RequestsPerMinute int
	// Burst is the bucket capacity.
	Burst   int
	Enabled bool
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the default rate limiter configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             10,
		Enabled:           true,
		CleanupInterval:   5 * time.Minute,
	}
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// RateLimiter provides per-client token bucket rate limiting.
type RateLimiter struct {
	config   RateLimiterConfig
	buckets  map[string]*tokenBucket
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter. Zero rate or burst values take defaults.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
		stopCh:  make(chan struct{}),
	}
	if config.Enabled {
		go rl.cleanup()
	}
	return rl
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, bucket := range rl.buckets {
				bucket.mu.Lock()
				if now.Sub(bucket.lastRefill) > rl.config.CleanupInterval*2 {
					delete(rl.buckets, ip)
				}
				bucket.mu.Unlock()
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) bucket(ip string) *tokenBucket {
	rl.mu.RLock()
	b, ok := rl.buckets[ip]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[ip]; ok {
		return b
	}
	b = &tokenBucket{tokens: float64(rl.config.Burst), lastRefill: time.Now()}
	rl.buckets[ip] = b
	return b
}

// Allow takes a token for ip. It returns whether the request may proceed,
// the tokens left, and when the bucket will be full again.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	if !rl.config.Enabled {
		return true, rl.config.RequestsPerMinute, time.Now().Add(time.Minute)
	}

	b := rl.bucket(ip)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens = min(b.tokens+now.Sub(b.lastRefill).Seconds()*perSecond, float64(rl.config.Burst))
	b.lastRefill = now

	missing := float64(rl.config.Burst) - b.tokens
	reset := now.Add(time.Duration(missing / perSecond * float64(time.Second)))

	if b.tokens >= 1 {
		b.tokens--
		return true, int(b.tokens), reset
	}
	return false, 0, reset
}

// RateLimit returns a middleware that rejects clients over their limit with
// 429 and the standard X-RateLimit headers.
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, reset := rl.Allow(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retry := int64(time.Until(reset).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
			handlers.SendError(w, http.StatusTooManyRequests, handlers.ErrCodeRateLimited,
				fmt.Sprintf("rate limit exceeded, retry in %ds", retry))
			return
		}

		next.ServeHTTP(w, r)
	})
}
