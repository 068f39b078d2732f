// Package router provides a flexible and feature-rich HTTP routing framework.
// It supports middleware, sub-routers, generic handlers, and various configuration options.
package router

import (
	"net/http"
	"time"

	"github.com/Suhaibinator/PathRouter/pkg/common"
	"github.com/Suhaibinator/PathRouter/pkg/metrics"
	"github.com/Suhaibinator/PathRouter/pkg/middleware"
	"go.uber.org/zap"
)

// AuthLevel defines the authentication level for a route.
type AuthLevel int

const (
	// NoAuth indicates that no authentication is required for the route.
	NoAuth AuthLevel = iota

	// AuthOptional runs the router's Authenticator but lets the request through
	// when it fails. On success the authenticated request is used.
	AuthOptional

	// AuthRequired rejects requests the Authenticator refuses with 401.
	AuthRequired
)

// String returns the level's name.
func (l AuthLevel) String() string {
	switch l {
	case NoAuth:
		return "none"
	case AuthOptional:
		return "optional"
	case AuthRequired:
		return "required"
	default:
		return "unknown"
	}
}

// RouterConfig defines the global configuration for the router.
type RouterConfig struct {
	Logger            *zap.Logger                 // Logger for all router operations; zap.NewProduction when nil
	GlobalTimeout     time.Duration               // Default response timeout for all routes
	GlobalMaxBodySize int64                       // Default maximum request body size in bytes
	GlobalRateLimit   *middleware.RateLimitConfig // Default rate limit for all routes
	RateLimiter       middleware.RateLimiter      // Limiter backing every rate limit; a token bucket limiter when nil
	IPConfig          *middleware.IPConfig        // Configuration for client IP extraction
	EnableLogging     bool                        // Log every request by status class
	EnableTraceID     bool                        // Attach a trace ID to every request and its log entries
	EnableMetrics     bool                        // Collect Prometheus metrics per route
	MetricsConfig     *metrics.Config             // Metrics configuration; latency and throughput when nil
	MetricsPath       string                      // When set, the metrics endpoint is served on this path
	CORS              *middleware.CORSConfig      // Cross-origin policy applied before routing
	Authenticator     Authenticator               // Used by routes with AuthOptional or AuthRequired
	SubRouters        []SubRouterConfig           // Sub-routers with their own configurations
	Middlewares       []common.Middleware         // Global middlewares applied to all routes
}

// SubRouterConfig defines configuration for a group of routes with a common path prefix.
type SubRouterConfig struct {
	PathPrefix          string                      // Common path prefix for all routes in this sub-router
	TimeoutOverride     time.Duration               // Override global timeout for all routes in this sub-router
	MaxBodySizeOverride int64                       // Override global max body size for all routes in this sub-router
	RateLimitOverride   *middleware.RateLimitConfig // Override global rate limit for all routes in this sub-router
	Routes              []RouteConfigBase           // Routes in this sub-router
	Middlewares         []common.Middleware         // Middlewares applied to all routes in this sub-router
}

// RouteConfigBase defines the base configuration for a route without generics.
type RouteConfigBase struct {
	Path        string                      // Route pattern, e.g. "/users/:id"; prefixed by the sub-router
	Methods     []string                    // HTTP methods this route handles
	AuthLevel   AuthLevel                   // Authentication level for this route
	Timeout     time.Duration               // Override timeout for this specific route
	MaxBodySize int64                       // Override max body size for this specific route
	RateLimit   *middleware.RateLimitConfig // Rate limit for this specific route
	CacheTTL    time.Duration               // Cache successful GET responses for this long; public routes only
	Handler     http.Handler                // Handler for the route
	Middlewares []common.Middleware         // Middlewares applied to this specific route
}

// RouteConfig defines a route with generic request and response types.
// The codec decodes the request body into T and encodes the handler's U.
type RouteConfig[T any, U any] struct {
	Path        string                      // Route pattern
	Methods     []string                    // HTTP methods this route handles
	AuthLevel   AuthLevel                   // Authentication level for this route
	Timeout     time.Duration               // Override timeout for this specific route
	MaxBodySize int64                       // Override max body size for this specific route
	RateLimit   *middleware.RateLimitConfig // Rate limit for this specific route
	Codec       Codec[T, U]                 // Codec for decoding requests and encoding responses
	Handler     GenericHandler[T, U]        // Generic handler function
	Middlewares []common.Middleware         // Middlewares applied to this specific route
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware

// GenericHandler handles a decoded request value and returns the value to encode.
// Returning an *HTTPError chooses the status and message of the error response.
type GenericHandler[T any, U any] func(r *http.Request, data T) (U, error)

// Codec decodes request data from an HTTP request and encodes response data to
// an HTTP response. The codec package provides JSON and Protocol Buffers
// implementations.
type Codec[T any, U any] interface {
	Decode(r *http.Request) (T, error)
	Encode(w http.ResponseWriter, resp U) error
}

// Authenticator authenticates a request and returns the request to continue
// with, typically carrying the user in its context.
type Authenticator func(r *http.Request) (*http.Request, error)

// ProviderAuthenticator adapts a middleware.AuthProvider.
func ProviderAuthenticator(p middleware.AuthProvider) Authenticator {
	return func(r *http.Request) (*http.Request, error) {
		if !p.Authenticate(r) {
			return nil, middleware.ErrInvalidCredentials
		}
		return r, nil
	}
}

// UserAuthenticator adapts a middleware.UserAuthProvider. The user is stored
// in the request context and read back with middleware.GetUser[T].
func UserAuthenticator[T any](p middleware.UserAuthProvider[T]) Authenticator {
	return func(r *http.Request) (*http.Request, error) {
		user, err := p.AuthenticateUser(r)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, middleware.ErrInvalidCredentials
		}
		return r.WithContext(middleware.WithUser(r.Context(), user)), nil
	}
}

// getEffectiveTimeout returns the effective timeout for a route.
// It considers route-specific, sub-router, and global timeout settings in that order of precedence.
func (r *Router) getEffectiveTimeout(routeTimeout, subRouterTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	if subRouterTimeout > 0 {
		return subRouterTimeout
	}
	return r.config.GlobalTimeout
}

// getEffectiveMaxBodySize returns the effective max body size for a route.
func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize, subRouterMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	if subRouterMaxBodySize > 0 {
		return subRouterMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}

// getEffectiveRateLimit returns the effective rate limit for a route.
func (r *Router) getEffectiveRateLimit(routeRateLimit, subRouterRateLimit *middleware.RateLimitConfig) *middleware.RateLimitConfig {
	if routeRateLimit != nil {
		return routeRateLimit
	}
	if subRouterRateLimit != nil {
		return subRouterRateLimit
	}
	return r.config.GlobalRateLimit
}
