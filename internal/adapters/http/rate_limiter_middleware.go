package http

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"billpay-processing-system/internal/core/ports"
)

// RateLimiterMiddleware throttles requests per client IP.
type RateLimiterMiddleware struct {
	repo   ports.RateLimiterRepository
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiterMiddleware(repo ports.RateLimiterRepository, limit int, window time.Duration, logger *slog.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		repo:   repo,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

func (m *RateLimiterMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			m.logger.Error("failed to determine client ip", "error", err)
			// Without an IP there is nothing to key on; let the request
			// through rather than block legitimate users.
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := m.repo.IsAllowed(r.Context(), ip, m.limit, m.window)
		if err != nil {
			m.logger.Error("rate limit check failed", "error", err)
			// Fail open: a broken limiter must not take the whole
			// service down with it.
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			writeJSONError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
