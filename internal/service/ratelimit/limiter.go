package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	xhttp "RecessionLens/pkg/http"

	"github.com/labstack/echo/v4"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

type Limiter struct {
	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

func New() *Limiter { return &Limiter{m: make(map[string]*bucket), now: time.Now} }

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	// refill
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// Middleware limits each client IP to burst requests refilled at rps per second.
func (l *Limiter) Middleware(burst int, rps float64) echo.MiddlewareFunc {
	retry := strconv.Itoa(int(1/rps) + 1)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP(), float64(burst), rps) {
				c.Response().Header().Set("Retry-After", retry)
				appErr := xhttp.TooManyRequestsError("rate limit exceeded")
				return xhttp.DataResponse(c, http.StatusTooManyRequests, []*xhttp.AppError{appErr})
			}
			return next(c)
		}
	}
}
