package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/rapport/backend/pkg/utils"
)

// idleLimiterTTL 之后未再访问的客户端限流器会被回收。
const idleLimiterTTL = 10 * time.Minute

// RateLimiter throttles requests per client address with a token bucket.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	clients *cache.Cache
}

// NewRateLimiter allows rps requests per second per client with the given
// burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: cache.New(idleLimiterTTL, idleLimiterTTL/2),
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.clients.Get(key); ok {
		lim := v.(*rate.Limiter)
		// 刷新过期时间
		l.clients.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	if err := l.clients.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Another request created it first.
		if v, ok := l.clients.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Handler rejects requests over the limit with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.rps)))
			utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(rps rate.Limit) int {
	if rps <= 0 || rps >= 1 {
		return 1
	}
	return int(1/float64(rps) + 0.5)
}
