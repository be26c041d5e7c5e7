package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RPS   float64       `yaml:"rps" default:"50"`
	Burst int           `yaml:"burst" default:"100"`
	TTL   time.Duration `yaml:"ttl" default:"10m"`
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle buckets are dropped
// after TTL.
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &RateLimiter{cfg: cfg, visitors: make(map[string]*visitor), now: time.Now}
}

// Allow reports whether key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rate.Limit(r.cfg.RPS), r.cfg.Burst)}
		r.visitors[key] = v
	}
	v.seen = now
	allowed := v.lim.AllowN(now, 1)
	r.sweep(now)
	return allowed
}

func (r *RateLimiter) sweep(now time.Time) {
	for k, v := range r.visitors {
		if now.Sub(v.seen) > r.cfg.TTL {
			delete(r.visitors, k)
		}
	}
}

// RateLimit rejects requests over the per-IP budget with 429. A non-positive
// RPS disables limiting.
func RateLimit(r *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r == nil || r.cfg.RPS <= 0 {
				return next(c)
			}
			if !r.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
