package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/planwise/backend/internal/auth"
	appctx "github.com/planwise/backend/internal/context"
	"github.com/planwise/backend/internal/metrics"
	"github.com/planwise/backend/internal/ratelimit"
)

// RateLimit returns middleware enforcing limiter on every request passing
// through it. Requests are keyed by the authenticated user when one is
// present, otherwise by client address. The name labels the limiter in
// rejection metrics.
func RateLimit(name string, limiter ratelimit.Limiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			if !limiter.Allow(r.Context(), key) {
				metrics.RateLimitRejections.WithLabelValues(name).Inc()
				status := limiter.Status(r.Context(), key)
				writeRateLimitError(w, limit, status)
				return
			}

			status := limiter.Status(r.Context(), key)
			setRateLimitHeaders(w, limit, status)

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey prefers the authenticated user id so one noisy client
// behind a shared NAT cannot exhaust the budget of everyone else.
func rateLimitKey(r *http.Request) string {
	if userID, ok := appctx.ExtractUserID(r.Context()); ok && userID != "" {
		return "user:" + userID
	}
	return "ip:" + requestAddr(r)
}

func requestAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, status ratelimit.Status) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(status.ResetAt.Unix(), 10))
}

func writeRateLimitError(w http.ResponseWriter, limit int, status ratelimit.Status) {
	setRateLimitHeaders(w, limit, status)

	retryAfter := int64(status.RetryAfter(time.Now()).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

	writeAuthzError(w, http.StatusTooManyRequests, auth.CodeRateLimited,
		"Rate limit exceeded. Please try again later.",
		map[string]interface{}{"retryAfter": retryAfter})
}
