package server

import (
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"internfunnel/internal/config"
)

const (
	defaultRateLimitClients = 4096
	defaultRateLimitTTL     = 15 * time.Minute
)

// RateLimitConfig limits requests per client IP. A zero RequestsPerMinute
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxClients        int
	EntryTTL          time.Duration
}

// RateLimitFromConfig reads the rate_limit section of funnel.yml.
func RateLimitFromConfig(cfg *config.Config) RateLimitConfig {
	if cfg == nil {
		return RateLimitConfig{}
	}
	return RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		MaxClients:        cfg.RateLimit.MaxClients,
	}
}

// rateLimiter keeps one token bucket per key. Idle keys age out of the LRU.
type rateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries *expirable.LRU[string, *rate.Limiter]
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	size := cfg.MaxClients
	if size <= 0 {
		size = defaultRateLimitClients
	}
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = defaultRateLimitTTL
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute)),
		burst:   burst,
		entries: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || key == "" {
		return true
	}
	return r.limiter(key).Allow()
}

func (r *rateLimiter) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.entries.Get(key)
	if !ok {
		lim = rate.NewLimiter(r.limit, r.burst)
		r.entries.Add(key, lim)
	}
	return lim
}

func (r *rateLimiter) retryAfter() time.Duration {
	if r.limit <= 0 {
		return time.Second
	}
	d := time.Duration(float64(time.Second) / float64(r.limit))
	if d < time.Second {
		return time.Second
	}
	return d
}

// newRateLimitMiddleware limits the API routes. Preflight requests, provider
// webhooks and routes outside the base path (metrics, docs) are not counted.
func newRateLimitMiddleware(cfg RateLimitConfig, basePath string, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newRateLimiter(cfg)
	prefix := path.Join("/", basePath)
	hooks := path.Join(prefix, "webhooks") + "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || strings.HasPrefix(r.URL.Path, hooks) ||
				(prefix != "/" && !strings.HasPrefix(r.URL.Path, prefix)) {
				next.ServeHTTP(w, r)
				return
			}
			key := rateLimitKey(r)
			if !limiter.allow(key) {
				logger.Warn("rate limit exceeded", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.retryAfter().Seconds())))
				se := newAPIError(http.StatusTooManyRequests, "", "Too many requests, please retry later", nil)
				writeJSON(w, se.GetStatus(), se)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := clientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

// clientIP reads RemoteAddr, which middleware.RealIP has already resolved
// from the forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
