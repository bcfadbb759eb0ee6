package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/logging"
)

// RateLimiter guards endpoints that create accounts, sessions or friend requests.
type RateLimiter interface {
	Allow(key string) bool
}

// throttle reports whether r may proceed under scope. Rejected requests are
// answered with 429 and message.
func throttle(w http.ResponseWriter, r *http.Request, limiter RateLimiter, scope, message string) bool {
	if limiter == nil {
		return true
	}
	key := rateLimitKey(r, scope)
	if limiter.Allow(key) {
		return true
	}

	logging.FromContext(r.Context()).Warn("rate limit exceeded", "scope", scope, "key", key)
	respondError(r.Context(), w, http.StatusTooManyRequests, message)
	return false
}

// rateLimitKey buckets authenticated callers by user id and everyone else by IP.
func rateLimitKey(r *http.Request, scope string) string {
	caller := "ip:" + clientIP(r)
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		caller = "user:" + userID
	}
	return scope + ":" + caller
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
