package handlers

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
)

// APIOption configures an API.
type APIOption func(*API)

// WithRateLimit allows perSecond requests per client, with bursts of the
// same size. Zero or less disables limiting.
func WithRateLimit(perSecond int) APIOption {
	return func(a *API) {
		if perSecond > 0 {
			a.limiter = newRateLimiter(perSecond)
		}
	}
}

// WithCompression gzips responses for clients that accept it.
func WithCompression() APIOption {
	return func(a *API) {
		a.compress = true
	}
}

// rateLimiter keeps one token bucket per client. A client is its API key,
// or its remote host when it sends none.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perSecond int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Second / time.Duration(perSecond)),
		burst:    perSecond,
	}
}

func (rl *rateLimiter) get(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[client]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[client] = l
	}
	return l
}

func clientKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.get(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(a.limiter.burst))
			w.Header().Set("X-RateLimit-Remaining", "0")
			a.sendError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) compression(next http.Handler) http.Handler {
	if !a.compress {
		return next
	}
	return gzhttp.GzipHandler(next)
}
