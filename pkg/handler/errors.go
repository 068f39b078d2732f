package handler

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP error with a status code and message.
// Handlers return it to choose the status and message of the error response.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Message rendered into the error body
}

// Error returns the error in the format "status: message".
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// HandlerError wraps a failure raised by a user handler, either returned as an
// error or thrown as a panic.
type HandlerError struct {
	Err   error
	Panic any // the recovered value when the handler panicked
}

// Error returns the underlying message.
func (e *HandlerError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// StatusFromError returns the status carried by an *HTTPError in err's chain,
// or 500.
func StatusFromError(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
		return httpErr.StatusCode
	}
	return http.StatusInternalServerError
}

// MessageFromError returns the message to show for err: the Message of an
// *HTTPError in its chain, otherwise err.Error().
func MessageFromError(err error) string {
	if err == nil {
		return http.StatusText(http.StatusInternalServerError)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return err.Error()
}

// recovered converts a panic value into a *HandlerError.
func recovered(rec any) *HandlerError {
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("%v", rec)
	}
	return &HandlerError{Err: err, Panic: rec}
}
