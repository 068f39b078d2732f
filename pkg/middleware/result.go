package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Suhaibinator/PathRouter/pkg/common"
	"github.com/Suhaibinator/PathRouter/pkg/handler"
)

// FailureHandler writes the response for a failed middleware result.
type FailureHandler func(w http.ResponseWriter, r *http.Request, err error)

// DefaultFailureHandler answers with the default error response, using the
// status of an *handler.HTTPError in err's chain when there is one.
func DefaultFailureHandler(w http.ResponseWriter, _ *http.Request, err error) {
	_ = handler.ErrorResponse(handler.StatusFromError(err), handler.MessageFromError(err)).Write(w)
}

type resultValueKey struct{}

// ResultValue returns the last non-request value produced by a result
// middleware for r, or nil.
func ResultValue(r *http.Request) any {
	return r.Context().Value(resultValueKey{})
}

// FromResult adapts a RequestMiddleware. A nil onFailure uses
// DefaultFailureHandler.
func FromResult(mw common.RequestMiddleware, onFailure FailureHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proceed(next, w, r, mw(r), onFailure)
		})
	}
}

// FromAsync adapts an AsyncRequestMiddleware. If the request context ends
// before a result arrives the request fails with 408.
func FromAsync(mw common.AsyncRequestMiddleware, onFailure FailureHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var res common.Result[any]
			select {
			case res = <-mw(r):
			case <-r.Context().Done():
				res = common.Fail[any](fmt.Errorf("%w: %v",
					handler.NewHTTPError(http.StatusRequestTimeout, "Request Timeout"), r.Context().Err()))
			}
			proceed(next, w, r, res, onFailure)
		})
	}
}

// FromThrowing adapts a ThrowingMiddleware. A panic is the failure; its value
// is used as the error when it is one.
func FromThrowing(mw common.ThrowingMiddleware, onFailure FailureHandler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proceed(next, w, r, callThrowing(mw, r), onFailure)
		})
	}
}

func callThrowing(mw common.ThrowingMiddleware, r *http.Request) (res common.Result[any]) {
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			res = common.Fail[any](err)
		}
	}()
	return common.Ok(mw(r))
}

func proceed(next http.Handler, w http.ResponseWriter, r *http.Request, res common.Result[any], onFailure FailureHandler) {
	if !res.IsOk() {
		if onFailure == nil {
			onFailure = DefaultFailureHandler
		}
		onFailure(w, r, res.Err())
		return
	}

	switch v := res.Value().(type) {
	case nil:
	case *http.Request:
		r = v
	default:
		r = r.WithContext(context.WithValue(r.Context(), resultValueKey{}, v))
	}
	next.ServeHTTP(w, r)
}
