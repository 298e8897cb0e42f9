package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dfworx/chat-backend/pkg/response"
)

// RateLimitConfig sets the per-caller token bucket.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// IdleTTL drops limiters of callers not seen for this long.
	IdleTTL time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	cfg   RateLimitConfig
	sweep time.Time
}

func (p *limiterPool) get(key string, now time.Time) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*limiterEntry)
	}
	if now.Sub(p.sweep) > p.cfg.IdleTTL {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > p.cfg.IdleTTL {
				delete(p.m, k)
			}
		}
		p.sweep = now
	}
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	l := rate.NewLimiter(rate.Limit(p.cfg.RPS), p.cfg.Burst)
	p.m[key] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key, time.Now()).Allow()
}

// RateLimit returns a per-user token bucket middleware. Unauthenticated
// requests are keyed by client IP.
func RateLimit(cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	limiters := &limiterPool{cfg: cfg}
	retryAfter := strconv.Itoa(int(1/cfg.RPS) + 1)
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if sc, ok := Scope(c); ok {
			key = "user:" + sc.UserID.String()
		}
		if !limiters.Allow(key) {
			c.Header("Retry-After", retryAfter)
			response.TooManyRequests(c, "rate limit exceeded")
			c.Abort()
			logger.Warn("rate_limited", zap.String("key", key), zap.String("path", c.Request.URL.Path))
			return
		}
		c.Next()
	}
}
