package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/pkg/utils"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
	defaultRatePerIP  = 20
	defaultBurstPerIP = 40
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP and forgets clients idle
// for longer than limiterIdleTTL.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
	now     func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = defaultRatePerIP
	}
	if burst <= 0 {
		burst = defaultBurstPerIP
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow consumes a token for ip and reports whether the request may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.now()

	rl.mu.Lock()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Sweep drops clients not seen within limiterIdleTTL.
func (rl *RateLimiter) Sweep() int {
	cutoff := rl.now().Add(-limiterIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()

	for range ticker.C {
		rl.Sweep()
	}
}

// RateLimitMiddleware answers 429 with a Retry-After hint once a client
// exhausts its bucket.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiter := NewRateLimiter(rps, burst)
	go limiter.sweepLoop()

	return rateLimitHandler(limiter)
}

func rateLimitHandler(limiter *RateLimiter) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / float64(limiter.rate))))

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if limiter.Allow(ip) {
			c.Next()
			return
		}

		logger.Warn("Rate limit exceeded",
			zap.String("request_id", GetRequestID(c)),
			zap.String("ip", ip),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)

		c.Header("Retry-After", retryAfter)
		utils.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		c.Abort()
	}
}
