package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/orthogate/internal/api/response"
	"github.com/kiranshivaraju/orthogate/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// RateLimit caps requests per API key in fixed one-minute windows. The
// window is opened by the key's first request, so the reset headers come
// from the counter rather than from the clock.
type RateLimit struct {
	counter cache.WindowCounter
	limit   int
}

// NewRateLimit creates a RateLimit allowing requestsPerMin per key; zero or
// less selects the default.
func NewRateLimit(counter cache.WindowCounter, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{counter: counter, limit: requestsPerMin}
}

// Limit counts the request against the key prefix set by Auth. Requests
// without one pass through, and a counter failure fails open.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix, ok := getKeyPrefix(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, resetIn, err := rl.counter.Hit(r.Context(), prefix, rateWindow)
		if err != nil {
			slog.Warn("rate limit check failed, allowing request",
				"error", err,
				"key_prefix", prefix,
				"request_id", GetRequestID(r.Context()),
			)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.limit)-count, 0), 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10))

		if count > int64(rl.limit) {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(resetIn.Seconds()))))
			response.Error(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
