// Package common provides shared types used across the PathRouter packages.
package common

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
// It allows for pre-processing and post-processing of HTTP requests.
type Middleware func(http.Handler) http.Handler

// RequestMiddleware inspects a request and yields either a success value or a
// failure. A *http.Request success value replaces the request for the rest of
// the chain; any other value is attached to the request context.
type RequestMiddleware func(r *http.Request) Result[any]

// AsyncRequestMiddleware is the asynchronous form of RequestMiddleware. The
// channel must deliver exactly one Result.
type AsyncRequestMiddleware func(r *http.Request) <-chan Result[any]

// ThrowingMiddleware signals failure by panicking instead of returning a
// failed Result. A panic value that is not an error is wrapped in one.
type ThrowingMiddleware func(r *http.Request) any
