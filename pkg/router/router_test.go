package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Suhaibinator/PathRouter/pkg/handler"
	"github.com/Suhaibinator/PathRouter/pkg/params"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, config RouterConfig) *Router {
	t.Helper()
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	r, err := NewRouter(config)
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

func doRequest(r http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// TestRouteParams tests that path parameters are extracted and exposed to handlers
func TestRouteParams(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})

	err := r.RegisterRoute(RouteConfigBase{
		Path:    "/a/:x/b/:y",
		Methods: []string{http.MethodGet},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ps := GetParams(req)
			_, _ = w.Write([]byte(ps.Get("x") + "," + GetParam(req, "y") + "," + RoutePattern(req)))
		}),
	})
	if err != nil {
		t.Fatalf("Failed to register route: %v", err)
	}

	rec := doRequest(r, http.MethodGet, "/a/1/b/2", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "1,2,/a/:x/b/:y" {
		t.Errorf("Expected body %q, got %q", "1,2,/a/:x/b/:y", rec.Body.String())
	}
}

// TestHandleRouteHandler tests registering a RouteHandler built by the handler package
func TestHandleRouteHandler(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})

	err := r.Handle(handler.Get("/hello/:name", func(req *http.Request) (any, error) {
		name := GetParam(req, "name")
		if name == "error" {
			return nil, errors.New("boom")
		}
		return "Hello, " + name, nil
	}))
	if err != nil {
		t.Fatalf("Failed to register handler: %v", err)
	}

	rec := doRequest(r, http.MethodGet, "/hello/bob", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "Hello, bob" {
		t.Errorf("Expected 200 %q, got %d %q", "Hello, bob", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Expected content type text/plain, got %q", ct)
	}

	rec = doRequest(r, http.MethodGet, "/hello/error", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if rec.Body.String() != "<h1>boom</h1>" {
		t.Errorf("Expected body %q, got %q", "<h1>boom</h1>", rec.Body.String())
	}
}

// TestNotFoundAndMethodNotAllowed tests the shaped responses for unmatched requests
func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/hello/:name",
		Methods: []string{http.MethodGet},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}),
	})

	rec := doRequest(r, http.MethodGet, "/hello/bob/extra", "")
	if rec.Code != http.StatusNotFound || rec.Body.String() != "<h1>Not Found</h1>" {
		t.Errorf("Expected shaped 404, got %d %q", rec.Code, rec.Body.String())
	}

	rec = doRequest(r, http.MethodPost, "/hello/bob", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status code %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}

	rec = doRequest(r, http.MethodGet, "/hello/bob/", "")
	if rec.Code != http.StatusMovedPermanently || rec.Header().Get("Location") != "/hello/bob" {
		t.Errorf("Expected redirect to /hello/bob, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

// TestRegistrationErrors tests that invalid routes are rejected instead of panicking
func TestRegistrationErrors(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	noop := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {})

	err := r.RegisterRoute(RouteConfigBase{Path: "/users/:id/:id", Methods: []string{http.MethodGet}, Handler: noop})
	if !errors.Is(err, params.ErrMalformedRoute) {
		t.Errorf("Expected a malformed route error, got %v", err)
	}

	err = r.RegisterRoute(RouteConfigBase{Path: "/files/*path", Methods: []string{http.MethodGet}, Handler: noop})
	if !errors.Is(err, params.ErrMalformedRoute) {
		t.Errorf("Expected catch-all to be rejected, got %v", err)
	}

	if err := r.RegisterRoute(RouteConfigBase{Path: "/ok", Methods: []string{http.MethodGet}, Handler: noop}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := r.RegisterRoute(RouteConfigBase{Path: "/ok", Methods: []string{http.MethodGet}, Handler: noop}); err == nil {
		t.Error("Expected an error for a duplicate route")
	}

	if err := r.RegisterRoute(RouteConfigBase{Path: "/nohandler", Methods: []string{http.MethodGet}}); err == nil {
		t.Error("Expected an error for a missing handler")
	}
	if err := r.RegisterRoute(RouteConfigBase{Path: "/nomethods", Handler: noop}); err == nil {
		t.Error("Expected an error for missing methods")
	}
	if err := r.RegisterRoute(RouteConfigBase{Path: "/secure", Methods: []string{http.MethodGet}, AuthLevel: AuthRequired, Handler: noop}); err == nil {
		t.Error("Expected an error for an auth route without authenticator")
	}

	err = r.RegisterRoutes(
		RouteConfigBase{Path: "/a/:", Methods: []string{http.MethodGet}, Handler: noop},
		RouteConfigBase{Path: "/b", Methods: []string{http.MethodGet}, Handler: noop},
		RouteConfigBase{Path: "/c"},
	)
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Expected 2 aggregated errors, got %d: %v", n, err)
	}
	if rec := doRequest(r, http.MethodGet, "/b", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected valid route to be registered, got %d", rec.Code)
	}
}

// TestNewRouterAggregatesSubRouterErrors tests that NewRouter reports every bad route
func TestNewRouterAggregatesSubRouterErrors(t *testing.T) {
	_, err := NewRouter(RouterConfig{
		Logger: zap.NewNop(),
		SubRouters: []SubRouterConfig{{
			PathPrefix: "/api",
			Routes: []RouteConfigBase{
				{Path: "/:", Methods: []string{http.MethodGet}, Handler: http.NotFoundHandler()},
				{Path: "/x"},
			},
		}},
	})
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("Expected 2 errors, got %d: %v", n, err)
	}
}

// TestSubRouter tests prefixes, middleware order and overrides of sub-routers
func TestSubRouter(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, req)
			})
		}
	}

	r := newTestRouter(t, RouterConfig{
		GlobalTimeout: time.Second,
		Middlewares:   []Middleware{mark("global")},
		SubRouters: []SubRouterConfig{{
			PathPrefix:      "/api/v1/",
			TimeoutOverride: 10 * time.Millisecond,
			Middlewares:     []Middleware{mark("sub")},
			Routes: []RouteConfigBase{
				{
					Path:        "/users/:id",
					Methods:     []string{http.MethodGet},
					Middlewares: []Middleware{mark("route")},
					Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
						order = append(order, "handler")
						_, _ = w.Write([]byte(GetParam(req, "id")))
					}),
				},
				{
					Path:    "/slow",
					Methods: []string{http.MethodGet},
					Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
						<-req.Context().Done()
					}),
				},
			},
		}},
	})

	rec := doRequest(r, http.MethodGet, "/api/v1/users/7", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "7" {
		t.Errorf("Expected 200 %q, got %d %q", "7", rec.Code, rec.Body.String())
	}
	if got := strings.Join(order, ","); got != "global,sub,route,handler" {
		t.Errorf("Expected middleware order global,sub,route,handler, got %s", got)
	}

	rec = doRequest(r, http.MethodGet, "/api/v1/slow", "")
	if rec.Code != http.StatusRequestTimeout {
		t.Errorf("Expected status code %d, got %d", http.StatusRequestTimeout, rec.Code)
	}
}

// TestEffectiveSettings tests route over sub-router over global precedence
func TestEffectiveSettings(t *testing.T) {
	r := newTestRouter(t, RouterConfig{GlobalTimeout: time.Second, GlobalMaxBodySize: 100})

	if got := r.getEffectiveTimeout(2*time.Second, 3*time.Second); got != 2*time.Second {
		t.Errorf("Expected route timeout, got %v", got)
	}
	if got := r.getEffectiveTimeout(0, 3*time.Second); got != 3*time.Second {
		t.Errorf("Expected sub-router timeout, got %v", got)
	}
	if got := r.getEffectiveTimeout(0, 0); got != time.Second {
		t.Errorf("Expected global timeout, got %v", got)
	}
	if got := r.getEffectiveMaxBodySize(0, 50); got != 50 {
		t.Errorf("Expected sub-router max body size, got %d", got)
	}
	if got := r.getEffectiveMaxBodySize(0, 0); got != 100 {
		t.Errorf("Expected global max body size, got %d", got)
	}
}

// TestRecovery tests that panics become the default error response
func TestRecovery(t *testing.T) {
	r := newTestRouter(t, RouterConfig{})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/panic",
		Methods: []string{http.MethodGet},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			panic("boom")
		}),
	})

	rec := doRequest(r, http.MethodGet, "/panic", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if rec.Body.String() != "<h1>Internal Server Error</h1>" {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}

// TestShutdown tests that in-flight requests finish and new ones get 503
func TestShutdown(t *testing.T) {
	r, err := NewRouter(RouterConfig{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Failed to create router: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	_ = r.RegisterRoute(RouteConfigBase{
		Path:    "/work",
		Methods: []string{http.MethodGet},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			close(started)
			<-release
			_, _ = w.Write([]byte("done"))
		}),
	})

	var wg sync.WaitGroup
	var inflight *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		inflight = doRequest(r, http.MethodGet, "/work", "")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected shutdown to time out while a request is running, got %v", err)
	}

	rec := doRequest(r, http.MethodGet, "/work", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status code %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}

	close(release)
	wg.Wait()
	if inflight.Code != http.StatusOK || inflight.Body.String() != "done" {
		t.Errorf("Expected in-flight request to finish, got %d %q", inflight.Code, inflight.Body.String())
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
