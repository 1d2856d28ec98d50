package ratelimit

import (
	"encoding/json"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
)

// ClientKey keys requests by remote IP. Run it after a real-IP middleware
// when the daemon sits behind a proxy.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
// A nil limiter disables limiting.
func Middleware(l *Limiter, key func(*http.Request) string, logger *log.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientKey
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			allowed, wait := l.Allow(k)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
			if logger != nil {
				logger.Printf("rate limit exceeded: client=%s path=%s", k, r.URL.Path)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many attempts, try again later"})
		})
	}
}
