package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := routeCost(r)
		if cost == 0 {
			next.ServeHTTP(w, r)
			return
		}

		subject := s.userID(r) + ":" + routeLabel(r.URL.Path)
		decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost)
		if err != nil {
			s.logger.Printf("rate limiter check failed subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(routeLabel(r.URL.Path)).Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// routeCost is the number of tokens a request spends; zero skips the limiter.
// Preview settings updates are coalesced by the debouncer and stay free.
func routeCost(r *http.Request) int {
	if r.Method == http.MethodGet || r.Method == http.MethodDelete {
		return 0
	}
	switch {
	case r.URL.Path == "/v1/render":
		return 2
	case r.URL.Path == "/v1/previews":
		return 1
	case strings.HasPrefix(r.URL.Path, "/v1/jobs"):
		return 1
	default:
		return 0
	}
}
