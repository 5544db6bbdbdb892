package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Limiter decides whether a request identified by key may proceed within a
// fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) Decision
	Close() error
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	WindowEnd time.Time
}

// Remaining returns how many requests are left in the current window.
func (d Decision) Remaining(limit int) int {
	if r := limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// KeyFunc derives the bucket key for a request.
type KeyFunc func(*http.Request) string

// Rule describes a limit applied to a route.
type Rule struct {
	Route  string
	Limit  int
	Window time.Duration
	Key    KeyFunc
}

// Middleware enforces rule using limiter. onLimited, when non-nil, is called
// for each rejected request, and reject writes the 429 response.
func Middleware(limiter Limiter, rule Rule, onLimited func(route string), reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || rule.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			keyFn := rule.Key
			if keyFn == nil {
				keyFn = KeyByIP
			}
			key := rule.Route + "|" + keyFn(r)

			decision := limiter.Allow(r.Context(), key, rule.Limit, rule.Window)
			setHeaders(w, rule.Limit, decision)

			if !decision.Allowed {
				if onLimited != nil {
					onLimited(rule.Route)
				}
				if seconds := int(time.Until(decision.WindowEnd).Seconds()); seconds > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(seconds))
				}
				reject(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// KeyByIP keys requests on the client address.
func KeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

func setHeaders(w http.ResponseWriter, limit int, d Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining(limit)))
	if !d.WindowEnd.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
	}
}
