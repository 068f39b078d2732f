package middleware

import (
	"net/http"
	"time"

	"go.uber.org/ratelimit"
)

// Throttle paces requests so that at most n start per interval. Unlike
// RateLimit it never rejects; callers wait for their slot.
func Throttle(n int, per time.Duration) Middleware {
	if n <= 0 {
		n = 1
	}
	if per <= 0 {
		per = time.Second
	}
	limiter := ratelimit.New(n, ratelimit.Per(per), ratelimit.WithoutSlack)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter.Take()
			next.ServeHTTP(w, r)
		})
	}
}
