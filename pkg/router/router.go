package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Suhaibinator/PathRouter/pkg/common"
	"github.com/Suhaibinator/PathRouter/pkg/handler"
	"github.com/Suhaibinator/PathRouter/pkg/metrics"
	"github.com/Suhaibinator/PathRouter/pkg/middleware"
	"github.com/Suhaibinator/PathRouter/pkg/params"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Router is the main router struct that implements http.Handler.
// It provides routing, middleware support, graceful shutdown, and other features.
type Router struct {
	config       RouterConfig
	router       *httprouter.Router
	handler      http.Handler
	logger       *zap.Logger
	rateLimiter  middleware.RateLimiter
	ownedLimiter *middleware.TokenBucketLimiter
	metrics      *metrics.Collector
	wg           sync.WaitGroup
	shutdown     bool
	shutdownMu   sync.RWMutex
	stopOnce     sync.Once
}

// HTTPError is the error handlers return to choose the status and message of
// the error response.
type HTTPError = handler.HTTPError

// NewHTTPError creates a new HTTPError with the specified status code and message.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return handler.NewHTTPError(statusCode, message)
}

type routePatternKey struct{}

// NewRouter creates a new Router with the given configuration and registers
// the routes of its sub-routers. Every registration failure is reported in
// the returned error.
func NewRouter(config RouterConfig) (*Router, error) {
	hr := httprouter.New()

	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	r := &Router{
		config:      config,
		router:      hr,
		handler:     hr,
		logger:      logger,
		rateLimiter: config.RateLimiter,
	}

	hr.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = handler.ErrorResponse(http.StatusNotFound, http.StatusText(http.StatusNotFound)).Write(w)
	})
	hr.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = handler.ErrorResponse(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)).Write(w)
	})

	if r.rateLimiter == nil {
		r.ownedLimiter = middleware.NewTokenBucketLimiter(0)
		r.rateLimiter = r.ownedLimiter
	}

	if config.EnableMetrics {
		metricsConfig := metrics.Config{EnableLatency: true, EnableThroughput: true}
		if config.MetricsConfig != nil {
			metricsConfig = *config.MetricsConfig
		}
		collector, err := metrics.NewCollector(metricsConfig)
		if err != nil {
			r.stop()
			return nil, fmt.Errorf("create metrics collector: %w", err)
		}
		r.metrics = collector
	}

	if config.CORS != nil {
		r.handler = middleware.CORS(*config.CORS)(hr)
	}

	var err error
	if r.metrics != nil && config.MetricsPath != "" {
		err = multierr.Append(err, r.RegisterRoute(RouteConfigBase{
			Path:    config.MetricsPath,
			Methods: []string{http.MethodGet},
			Handler: r.metrics.Handler(),
		}))
	}
	for _, sr := range config.SubRouters {
		err = multierr.Append(err, r.RegisterSubRouter(sr))
	}
	if err != nil {
		r.stop()
		return nil, err
	}

	return r, nil
}

// RegisterSubRouter registers all routes in a sub-router under its path prefix.
func (r *Router) RegisterSubRouter(sr SubRouterConfig) error {
	var err error
	for _, route := range sr.Routes {
		err = multierr.Append(err, r.registerRoute(route, &sr))
	}
	return err
}

// RegisterRoute registers a route with the router.
// For generic routes with type parameters, use RegisterGenericRoute function instead.
func (r *Router) RegisterRoute(route RouteConfigBase) error {
	return r.registerRoute(route, nil)
}

// RegisterRoutes registers several routes and reports every failure.
func (r *Router) RegisterRoutes(routes ...RouteConfigBase) error {
	var err error
	for _, route := range routes {
		err = multierr.Append(err, r.RegisterRoute(route))
	}
	return err
}

// Handle registers a RouteHandler under its own path and method.
func (r *Router) Handle(h handler.RouteHandler, middlewares ...common.Middleware) error {
	return r.RegisterRoute(RouteConfigBase{
		Path:        h.Path,
		Methods:     []string{h.Method},
		Handler:     h,
		Middlewares: middlewares,
	})
}

// RegisterGenericRoute registers a route with generic request and response types.
// This is a standalone function rather than a method because Go methods cannot have type parameters.
func RegisterGenericRoute[Req any, Resp any](r *Router, route RouteConfig[Req, Resp]) error {
	if route.Codec == nil {
		return fmt.Errorf("route %q: codec is required", route.Path)
	}
	if route.Handler == nil {
		return fmt.Errorf("route %q: handler is required", route.Path)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, err := route.Codec.Decode(req)
		if err != nil {
			r.handleError(w, req, err, http.StatusBadRequest, "Failed to decode request")
			return
		}

		resp, err := route.Handler(req, data)
		if err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Handler error")
			return
		}

		if err := route.Codec.Encode(w, resp); err != nil {
			r.handleError(w, req, err, http.StatusInternalServerError, "Failed to encode response")
		}
	})

	return r.RegisterRoute(RouteConfigBase{
		Path:        route.Path,
		Methods:     route.Methods,
		AuthLevel:   route.AuthLevel,
		Timeout:     route.Timeout,
		MaxBodySize: route.MaxBodySize,
		RateLimit:   route.RateLimit,
		Handler:     h,
		Middlewares: route.Middlewares,
	})
}

func (r *Router) registerRoute(route RouteConfigBase, sr *SubRouterConfig) error {
	var (
		prefix      string
		timeout     = r.getEffectiveTimeout(route.Timeout, 0)
		maxBodySize = r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
		rateLimit   = r.getEffectiveRateLimit(route.RateLimit, nil)
		middlewares = route.Middlewares
	)
	if sr != nil {
		prefix = sr.PathPrefix
		timeout = r.getEffectiveTimeout(route.Timeout, sr.TimeoutOverride)
		maxBodySize = r.getEffectiveMaxBodySize(route.MaxBodySize, sr.MaxBodySizeOverride)
		rateLimit = r.getEffectiveRateLimit(route.RateLimit, sr.RateLimitOverride)
		middlewares = append(append([]common.Middleware{}, sr.Middlewares...), route.Middlewares...)
	}

	fullPath := joinPath(prefix, route.Path)
	pattern, err := params.Compile(fullPath)
	if err != nil {
		return err
	}
	if route.Handler == nil {
		return fmt.Errorf("route %q: handler is required", pattern)
	}
	if len(route.Methods) == 0 {
		return fmt.Errorf("route %q: at least one method is required", pattern)
	}
	if route.AuthLevel != NoAuth && r.config.Authenticator == nil {
		return fmt.Errorf("route %q: auth level %s needs a configured authenticator", pattern, route.AuthLevel)
	}
	if route.CacheTTL > 0 && route.AuthLevel != NoAuth {
		return fmt.Errorf("route %q: response cache is shared between users and cannot be used with auth level %s", pattern, route.AuthLevel)
	}

	h := r.wrapHandler(route.Handler, pattern.String(), route.AuthLevel, timeout, maxBodySize, rateLimit, route.CacheTTL, middlewares)
	handle := r.convertToHTTPRouterHandle(pattern, h)

	for _, method := range route.Methods {
		err = multierr.Append(err, r.handle(method, pattern.String(), handle))
	}
	if err == nil {
		r.logger.Debug("Route registered",
			zap.String("pattern", pattern.String()),
			zap.Strings("methods", route.Methods),
			zap.Stringer("auth", route.AuthLevel),
		)
	}
	return err
}

// handle registers with httprouter, which panics on conflicting routes.
func (r *Router) handle(method, path string, h httprouter.Handle) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register %s %s: %v", method, path, rec)
		}
	}()
	r.router.Handle(method, path, h)
	return nil
}

func joinPath(prefix, path string) string {
	if prefix == "" {
		return path
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(path, "/")
}

// convertToHTTPRouterHandle converts an http.Handler to an httprouter.Handle.
// The parameters are extracted from the request path with the route pattern
// and stored in the request context together with the pattern.
func (r *Router) convertToHTTPRouterHandle(pattern *params.Pattern, h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		ps, err := pattern.Extract(req.URL.Path)
		if err != nil {
			r.logger.Debug("Path does not fit route", r.logFields(req, zap.Error(err))...)
			_ = handler.ErrorResponse(http.StatusNotFound, http.StatusText(http.StatusNotFound)).Write(w)
			return
		}

		ctx := params.NewContext(req.Context(), ps)
		ctx = context.WithValue(ctx, routePatternKey{}, pattern.String())
		h.ServeHTTP(w, req.WithContext(ctx))
	}
}

// wrapHandler wraps a handler with all the necessary middleware. From the
// outside in: shutdown guard, trace ID, client IP, logging, metrics, panic
// recovery, global, sub-router and route middlewares, rate limit,
// authentication, response cache, body limit and timeout.
func (r *Router) wrapHandler(h http.Handler, pattern string, authLevel AuthLevel, timeout time.Duration, maxBodySize int64, rateLimit *middleware.RateLimitConfig, cacheTTL time.Duration, middlewares []Middleware) http.Handler {
	chain := common.NewMiddlewareChain(r.shutdownGuard)

	if r.config.EnableTraceID {
		chain = chain.Append(middleware.TraceMiddleware())
	}
	chain = chain.Append(middleware.ClientIPMiddleware(r.config.IPConfig))
	if r.config.EnableLogging {
		chain = chain.Append(middleware.Logging(r.logger))
	}
	if r.metrics != nil {
		chain = chain.Append(r.metrics.Middleware(pattern))
	}
	chain = chain.Append(middleware.Recovery(r.logger))

	chain = chain.Append(r.config.Middlewares...)
	chain = chain.Append(middlewares...)

	if rateLimit != nil {
		chain = chain.Append(middleware.RateLimit(rateLimit, r.rateLimiter, r.logger))
	}
	if authLevel != NoAuth {
		chain = chain.Append(r.authMiddleware(authLevel))
	}
	if cacheTTL > 0 {
		chain = chain.Append(middleware.NewResponseCache(cacheTTL).Middleware())
	}
	if maxBodySize > 0 {
		chain = chain.Append(middleware.MaxBodySize(maxBodySize))
	}
	if timeout > 0 {
		chain = chain.Append(middleware.Timeout(timeout, r.logger))
	}

	return chain.Then(h)
}

// shutdownGuard tracks in-flight requests and answers 503 once Shutdown has
// been called.
func (r *Router) shutdownGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Add before checking so Shutdown cannot miss this request.
		r.wg.Add(1)
		defer r.wg.Done()

		r.shutdownMu.RLock()
		isShutdown := r.shutdown
		r.shutdownMu.RUnlock()

		if isShutdown {
			_ = handler.ErrorResponse(http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)).Write(w)
			return
		}

		next.ServeHTTP(w, req)
	})
}

func (r *Router) authMiddleware(level AuthLevel) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			authed, err := r.config.Authenticator(req)
			if err == nil && authed != nil {
				r.logger.Debug("Authentication successful", r.logFields(req)...)
				next.ServeHTTP(w, authed)
				return
			}

			if level == AuthOptional {
				next.ServeHTTP(w, req)
				return
			}

			fields := r.logFields(req, zap.String("client_ip", middleware.ClientIP(req)))
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			r.logger.Warn("Authentication failed", fields...)
			_ = handler.ErrorResponse(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)).Write(w)
		})
	}
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Metrics returns the router's metrics collector, or nil when metrics are
// disabled.
func (r *Router) Metrics() *metrics.Collector {
	return r.metrics
}

// Shutdown gracefully shuts down the router.
// It stops accepting new requests and waits for existing requests to complete.
// If the context is canceled before all requests complete, it returns the context's error.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.stop()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) stop() {
	r.stopOnce.Do(func() {
		if r.ownedLimiter != nil {
			r.ownedLimiter.Stop()
		}
	})
}

// GetParams returns the path parameters of the matched route.
func GetParams(r *http.Request) params.Params {
	return params.FromContext(r.Context())
}

// GetParam returns a single path parameter, or "".
func GetParam(r *http.Request, name string) string {
	return GetParams(r).Get(name)
}

// RoutePattern returns the registered pattern of the matched route, or "".
func RoutePattern(r *http.Request) string {
	pattern, _ := r.Context().Value(routePatternKey{}).(string)
	return pattern
}

// handleError logs err and writes the error response. An *HTTPError in the
// chain chooses the status and message; an oversized body yields 413.
func (r *Router) handleError(w http.ResponseWriter, req *http.Request, err error, statusCode int, message string) {
	r.logger.Error(message, r.logFields(req, zap.Error(err))...)

	var httpErr *HTTPError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &httpErr):
		statusCode = httpErr.StatusCode
		message = httpErr.Message
	case errors.As(err, &maxBytesErr):
		statusCode = http.StatusRequestEntityTooLarge
		message = http.StatusText(http.StatusRequestEntityTooLarge)
	}

	_ = handler.ErrorResponse(statusCode, message).Write(w)
}

// logFields returns the standard request fields, with the trace ID first when
// tracing is enabled.
func (r *Router) logFields(req *http.Request, extra ...zap.Field) []zap.Field {
	fields := make([]zap.Field, 0, 4+len(extra))
	if r.config.EnableTraceID {
		if traceID := middleware.GetTraceID(req); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
	}
	fields = append(fields,
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)
	if pattern := RoutePattern(req); pattern != "" {
		fields = append(fields, zap.String("pattern", pattern))
	}
	return append(fields, extra...)
}
