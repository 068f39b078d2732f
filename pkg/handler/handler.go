// Package handler builds route handlers that shape their results into a
// uniform Response.
//
// A RouteHandler pairs a path pattern and method with a primary handler and an
// error handler. The primary handler answers 200 with the body returned by the
// user function. If the function returns an error or panics, the error handler
// answers instead, with status 500 and an HTML body <h1>message</h1> unless the
// route was built with different options.
package handler

import (
	"errors"
	"net/http"
)

// Func produces the body of a successful response.
type Func func(r *http.Request) (any, error)

// ErrorFunc produces the body of an error response. If it fails itself the
// default error response is used.
type ErrorFunc func(r *http.Request, err error) (any, error)

// RouteHandler is what a router registers: a path pattern, a method, and the
// two normalized handler functions. It implements http.Handler.
type RouteHandler struct {
	Path         string
	Method       string
	Handler      func(r *http.Request) (Response, error)
	ErrorHandler func(r *http.Request, err error) Response
}

type config struct {
	status           int
	contentType      ContentType
	headers          http.Header
	errorHandler     ErrorFunc
	errorStatus      int
	errorContentType ContentType
}

// Option configures a RouteHandler.
type Option func(*config)

// WithStatus overrides the success status (default 200).
func WithStatus(status int) Option {
	return func(c *config) { c.status = status }
}

// WithContentType sets the success content type. When unset it is inferred
// from the body.
func WithContentType(ct ContentType) Option {
	return func(c *config) { c.contentType = ct }
}

// WithHeader adds a header to successful responses.
func WithHeader(key, value string) Option {
	return func(c *config) {
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Add(key, value)
	}
}

// WithErrorHandler replaces the default error handler.
func WithErrorHandler(fn ErrorFunc) Option {
	return func(c *config) { c.errorHandler = fn }
}

// WithErrorStatus fixes the error status. Without it the status comes from an
// *HTTPError in the error chain, or is 500.
func WithErrorStatus(status int) Option {
	return func(c *config) { c.errorStatus = status }
}

// WithErrorContentType sets the error content type. The default error handler
// uses text/html.
func WithErrorContentType(ct ContentType) Option {
	return func(c *config) { c.errorContentType = ct }
}

// New builds a RouteHandler for method and path.
func New(method, path string, fn Func, opts ...Option) RouteHandler {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	errorHandler := cfg.errorHandler
	errorContentType := cfg.errorContentType
	if errorHandler == nil {
		errorHandler = defaultErrorFunc
		if errorContentType == "" {
			errorContentType = TextHTML
		}
	}

	return RouteHandler{
		Path:   path,
		Method: method,
		Handler: func(r *http.Request) (Response, error) {
			body, err := call(fn, r)
			if err != nil {
				return Response{}, err
			}
			status := cfg.status
			if status == 0 {
				status = http.StatusOK
			}
			return Response{
				Status:      status,
				Body:        body,
				Headers:     cfg.headers.Clone(),
				ContentType: cfg.contentType,
			}, nil
		},
		ErrorHandler: func(r *http.Request, err error) Response {
			status := cfg.errorStatus
			if status == 0 {
				status = StatusFromError(err)
			}
			body, herr := callError(errorHandler, r, err)
			if herr != nil {
				return ErrorResponse(status, MessageFromError(herr))
			}
			return Response{
				Status:      status,
				Body:        body,
				ContentType: errorContentType,
			}
		},
	}
}

// Get builds a GET RouteHandler.
func Get(path string, fn Func, opts ...Option) RouteHandler {
	return New(http.MethodGet, path, fn, opts...)
}

// Post builds a POST RouteHandler.
func Post(path string, fn Func, opts ...Option) RouteHandler {
	return New(http.MethodPost, path, fn, opts...)
}

// Put builds a PUT RouteHandler.
func Put(path string, fn Func, opts ...Option) RouteHandler {
	return New(http.MethodPut, path, fn, opts...)
}

// Patch builds a PATCH RouteHandler.
func Patch(path string, fn Func, opts ...Option) RouteHandler {
	return New(http.MethodPatch, path, fn, opts...)
}

// Delete builds a DELETE RouteHandler.
func Delete(path string, fn Func, opts ...Option) RouteHandler {
	return New(http.MethodDelete, path, fn, opts...)
}

// ErrorHandler returns an ErrorFunc that always renders message, ignoring the
// actual error.
func ErrorHandler(message string) ErrorFunc {
	return func(*http.Request, error) (any, error) {
		return ErrorBody(message), nil
	}
}

func defaultErrorFunc(_ *http.Request, err error) (any, error) {
	return ErrorBody(MessageFromError(err)), nil
}

// ServeHTTP runs the handler, falls back to the error handler on failure, and
// writes the resulting Response.
func (h RouteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		resp Response
		err  error
	)
	if h.Handler == nil {
		err = NewHTTPError(http.StatusNotImplemented, "Not Implemented")
	} else {
		resp, err = h.Handler(r)
	}

	if err == nil {
		err = resp.Write(w)
		if !errors.Is(err, ErrEncode) {
			return
		}
	}

	if werr := h.handleError(r, err).Write(w); werr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h RouteHandler) handleError(r *http.Request, err error) (resp Response) {
	if h.ErrorHandler == nil {
		return ErrorResponse(StatusFromError(err), MessageFromError(err))
	}
	defer func() {
		if rec := recover(); rec != nil {
			resp = DefaultErrorResponse(MessageFromError(recovered(rec)))
		}
	}()
	return h.ErrorHandler(r, err)
}

// call runs fn, converting both returned errors and panics into *HandlerError.
func call(fn Func, r *http.Request) (body any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			body, err = nil, recovered(rec)
		}
	}()
	body, err = fn(r)
	if err != nil {
		var herr *HandlerError
		if !errors.As(err, &herr) {
			err = &HandlerError{Err: err}
		}
	}
	return body, err
}

func callError(fn ErrorFunc, r *http.Request, cause error) (body any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			body, err = nil, recovered(rec)
		}
	}()
	return fn(r, cause)
}
