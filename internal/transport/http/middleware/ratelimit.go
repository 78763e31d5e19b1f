package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paydesk/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type rateLimiter struct {
	mu       sync.Mutex
	perMin   int
	keyFn    RateLimitKeyFunc
	limiters map[string]*visitor
	swept    time.Time
	logger   *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorIdle = 10 * time.Minute

// RateLimit allows perMinute requests per caller with a burst of the same size.
// Callers are keyed by user when authenticated, otherwise by client IP.
func RateLimit(perMinute int, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &rateLimiter{perMin: perMinute, keyFn: actorOrIPKey, limiters: map[string]*visitor{}, logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if rl.perMin <= 0 {
		return true
	}
	key := rl.keyFn(r)
	now := time.Now()

	rl.mu.Lock()
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMin)), rl.perMin)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	rl.evictIdle(now)
	rl.mu.Unlock()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))
	if v.limiter.AllowN(now, 1) {
		return true
	}
	retry := time.Minute / time.Duration(rl.perMin)
	w.Header().Set("Retry-After", strconv.Itoa(max(int(retry.Seconds()), 1)))
	rl.logger.Warn("rate limit exceeded",
		zap.String("key", key),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.Int("perMinute", rl.perMin),
	)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

// evictIdle drops visitors not seen recently, at most once per idle window.
// Callers hold rl.mu.
func (rl *rateLimiter) evictIdle(now time.Time) {
	if now.Sub(rl.swept) < visitorIdle {
		return
	}
	rl.swept = now
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(rl.limiters, key)
		}
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.Scope()
	}
	return "ip:" + clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if value := strings.TrimSpace(strings.Split(fwd, ",")[0]); value != "" {
			return value
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
