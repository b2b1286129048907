package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterEntry tracks rate limits for a single identifier
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for multiple identifiers
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewRateLimiter creates a rate limiter allowing perMinute events per
// identifier, with bursts up to the same size
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		idle:     5 * time.Minute,
		done:     make(chan struct{}),
	}

	go rl.cleanupStale()

	return rl
}

// Allow reports whether identifier may proceed now
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	entry, exists := rl.limiters[identifier]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[identifier] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}

// cleanupStale removes limiters that have been idle for a while
func (rl *RateLimiter) cleanupStale() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for id, entry := range rl.limiters {
				if time.Since(entry.lastSeen) > rl.idle {
					delete(rl.limiters, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// PerIP creates middleware that rate limits by client IP address
func PerIP(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

// PerSession creates middleware that rate limits by chat session. It must
// run after the session middleware.
func PerSession(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := SessionID(c)
		if id == "" {
			c.Next()
			return
		}

		if !limiter.Allow(id) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// WebSocketLimiter limits the message rate of a single websocket connection
type WebSocketLimiter struct {
	limiter *rate.Limiter
}

// NewWebSocketLimiter creates a limiter for websocket messages
func NewWebSocketLimiter(messagesPerMinute int) *WebSocketLimiter {
	if messagesPerMinute < 1 {
		messagesPerMinute = 1
	}
	return &WebSocketLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(messagesPerMinute)/60.0), messagesPerMinute),
	}
}

// Allow checks if a message is allowed
func (wsl *WebSocketLimiter) Allow() bool {
	return wsl.limiter.Allow()
}
