package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TraceHeader carries the trace ID on requests and responses.
const TraceHeader = "X-Request-ID"

type traceIDKey struct{}

// TraceMiddleware gives every request a trace ID. A valid UUID in the incoming
// X-Request-ID header is reused, otherwise a new one is generated. The ID is
// echoed on the response.
func TraceMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := incomingTraceID(r)
			if traceID == "" {
				traceID = uuid.New().String()
			}

			w.Header().Set(TraceHeader, traceID)
			next.ServeHTTP(w, r.WithContext(WithTraceID(r.Context(), traceID)))
		})
	}
}

func incomingTraceID(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get(TraceHeader))
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return ""
	}
	return id.String()
}

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// GetTraceID returns the request's trace ID, or "".
func GetTraceID(r *http.Request) string {
	return GetTraceIDFromContext(r.Context())
}

// GetTraceIDFromContext returns the trace ID stored in ctx, or "".
func GetTraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey{}).(string)
	return traceID
}
