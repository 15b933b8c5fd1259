package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/suteetoe/shopfleet/pkg/logger"
	"github.com/suteetoe/shopfleet/pkg/metrics"
)

// limiterPair pairs a client's rate limiter with a log limiter so a flood of
// rejected requests is logged at the start and then only periodically.
type limiterPair struct {
	limiter   *rate.Limiter
	sometimes *rate.Sometimes
	lastSeen  time.Time
}

// IPRateLimiter limits requests per client IP.
type IPRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiterPair
}

// NewIPRateLimiter allows perSecond requests per client IP with the given
// burst. Limiters idle for longer than ten minutes are dropped.
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
		limiters: make(map[string]*limiterPair),
	}
}

func (l *IPRateLimiter) get(ip string) *limiterPair {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pair, ok := l.limiters[ip]
	if !ok {
		l.prune(now)
		pair = &limiterPair{
			limiter:   rate.NewLimiter(l.limit, l.burst),
			sometimes: &rate.Sometimes{First: 10, Interval: time.Minute},
		}
		l.limiters[ip] = pair
	}
	pair.lastSeen = now
	return pair
}

// prune drops idle limiters. Callers hold l.mu.
func (l *IPRateLimiter) prune(now time.Time) {
	for ip, pair := range l.limiters {
		if now.Sub(pair.lastSeen) > l.idle {
			delete(l.limiters, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (l *IPRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			pair := l.get(ip)
			if !pair.limiter.AllowN(l.now(), 1) {
				pair.sometimes.Do(func() {
					logger.FromEcho(c).Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Path()))
				})
				metrics.RecordHandlerError("rate_limited")
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}
