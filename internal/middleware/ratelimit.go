package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/httpx"
)

var ErrRateLimited = apperr.RateLimited("common.rateLimited")

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ByUser keys authenticated requests by user id and falls back to the client IP.
func ByUser(r *http.Request) string {
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		return "user:" + strconv.FormatInt(id.UserID, 10)
	}
	return ByIP(r)
}

func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware holds one token bucket per key.
type RateLimiterMiddleware struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	key      KeyFunc
	idle     time.Duration
	now      func() time.Time
}

func NewRateLimiterMiddleware(r rate.Limit, b int, key KeyFunc) *RateLimiterMiddleware {
	if key == nil {
		key = ByUser
	}
	return &RateLimiterMiddleware{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		key:      key,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiterMiddleware) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		// Forget idle visitors so the map does not grow without bound.
		for k, old := range rl.visitors {
			if now.Sub(old.lastSeen) > rl.idle {
				delete(rl.visitors, k)
			}
		}
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		if !rl.allow(key) {
			log.Printf("RateLimiter: Rate limit exceeded for %s", key)
			httpx.Error(w, r, ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
