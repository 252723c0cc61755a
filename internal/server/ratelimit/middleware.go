package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/maruel/kvedit/internal/errors"
)

// WriteHeaders writes rate limit headers to the response.
func WriteHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// ClientIP returns the client address of r, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}

// BuildKey creates a bucket key from the client and tier.
func BuildKey(ip, tierName string) string {
	return "ip:" + ip + ":" + tierName
}

// Middleware rejects requests over the limit of their tier with 429.
func Middleware(cfg *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := cfg.Match(r.Method, r.URL.Path)
			if tier == nil {
				next.ServeHTTP(w, r)
				return
			}
			res := tier.Limiter.Allow(BuildKey(ClientIP(r), tier.Name))
			WriteHeaders(w, res)
			if !res.Allowed {
				slog.WarnContext(r.Context(), "Rate limited", "tier", tier.Name, "path", r.URL.Path)
				writeLimited(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimited(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    apierrors.ErrRateLimited,
			"message": "Too many requests",
		},
		"details": map[string]any{"retry_after": int(res.RetryAfter.Seconds())},
	})
}
