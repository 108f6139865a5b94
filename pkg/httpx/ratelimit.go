package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// RateLimitConfig sets the sustained request rate and the burst ceiling for
// one limiter profile.
type RateLimitConfig struct {
	Requests int // allowed per Window
	Window   time.Duration
	Burst    int
}

// The profiles cover the endpoint classes this service exposes. Each can be
// overridden with RATELIMIT_<NAME>_REQUESTS, RATELIMIT_<NAME>_WINDOW_SEC and
// RATELIMIT_<NAME>_BURST.
var (
	StrictLimit   = profile("STRICT", 5)    // credential endpoints
	ModerateLimit = profile("MODERATE", 20) // authenticated mutations
	LenientLimit  = profile("LENIENT", 100) // authenticated reads
	PublicLimit   = profile("PUBLIC", 1000) // discovery, JWKS
)

// profile builds a per-minute config, burst equal to the window allowance,
// with env overrides applied.
func profile(name string, requests int) RateLimitConfig {
	cfg := RateLimitConfig{Requests: requests, Window: time.Minute, Burst: requests}
	if v, err := strconv.Atoi(os.Getenv("RATELIMIT_" + name + "_REQUESTS")); err == nil && v > 0 {
		cfg.Requests = v
		cfg.Burst = v
	}
	if v, err := strconv.Atoi(os.Getenv("RATELIMIT_" + name + "_WINDOW_SEC")); err == nil && v > 0 {
		cfg.Window = time.Duration(v) * time.Second
	}
	if v, err := strconv.Atoi(os.Getenv("RATELIMIT_" + name + "_BURST")); err == nil && v > 0 {
		cfg.Burst = v
	}
	return cfg
}

// clientIP resolves the caller's address, trusting proxy headers when
// present. X-Forwarded-For may be a chain; the first hop is the client.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limiterPool holds one token bucket per key. Entries idle for longer than
// the prune horizon are dropped so ephemeral keys cannot grow the map
// without bound.
type limiterPool struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*poolEntry
	pruned  time.Time
}

type poolEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const pruneEvery = 5 * time.Minute
const pruneIdle = 10 * time.Minute

func newLimiterPool(cfg RateLimitConfig) *limiterPool {
	return &limiterPool{
		limit:   rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:   cfg.Burst,
		entries: make(map[string]*poolEntry),
		pruned:  time.Now(),
	}
}

func (p *limiterPool) allow(key string) (bool, time.Duration) {
	now := time.Now()

	p.mu.Lock()
	if now.Sub(p.pruned) > pruneEvery {
		for k, e := range p.entries {
			if now.Sub(e.lastSeen) > pruneIdle {
				delete(p.entries, k)
			}
		}
		p.pruned = now
	}
	e, ok := p.entries[key]
	if !ok {
		e = &poolEntry{lim: rate.NewLimiter(p.limit, p.burst)}
		p.entries[key] = e
	}
	e.lastSeen = now
	p.mu.Unlock()

	if e.lim.Allow() {
		return true, 0
	}
	res := e.lim.Reserve()
	delay := res.Delay()
	res.Cancel()
	return false, delay
}

// rateLimit wraps a handler with a keyed token bucket. Requests whose key
// cannot be determined pass through; refusing them would turn a parsing
// quirk into an outage.
func rateLimit(cfg RateLimitConfig, key func(*http.Request) string) Middleware {
	pool := newLimiterPool(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := pool.allow(k)
			if !ok {
				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", k, "endpoint", r.URL.Path, "retry_after", retryAfter)

				WriteJSON(w, http.StatusTooManyRequests, map[string]string{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests. Please try again later.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP throttles per client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, clientIP)
}

// RateLimitByUser throttles per authenticated user, falling back to the
// client address before the auth gate has run.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, func(r *http.Request) string {
		if id := UserIDFromContext(r.Context()); id != "" {
			return id
		}
		return clientIP(r)
	})
}

// RateLimitByIPAndFormField throttles per address and form value pair, so a
// single address hammering one account does not lock out the rest of its
// network, and a distributed attempt on one account still trips per-address.
func RateLimitByIPAndFormField(cfg RateLimitConfig, field string) Middleware {
	return rateLimit(cfg, func(r *http.Request) string {
		key := clientIP(r)
		if err := r.ParseForm(); err == nil && r.FormValue(field) != "" {
			key += ":" + r.FormValue(field)
		}
		return key
	})
}
