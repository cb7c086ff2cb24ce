package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	ips   map[string]*visitor
	mu    sync.Mutex
	swept time.Time
}

func NewRateLimiter(rps int, burst int) *RateLimiter {
	if burst < rps {
		burst = rps
	}
	return &RateLimiter{
		rps:   rate.Limit(rps),
		burst: burst,
		ips:   make(map[string]*visitor),
		swept: time.Now(),
	}
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.swept) > limiterIdleTTL {
		for key, v := range rl.ips {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(rl.ips, key)
			}
		}
		rl.swept = now
	}

	v, ok := rl.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.ips[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit rejects a client that exceeds its bucket with 429.
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiterFor(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}
		c.Next()
	}
}
