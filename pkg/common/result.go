package common

import (
	"errors"
)

// ErrNilFailure is used when Fail is called with a nil error.
var ErrNilFailure = errors.New("failure without an error")

// Result is a tagged success/failure value.
// The zero value is a failure carrying ErrNilFailure.
type Result[T any] struct {
	value T
	err   error
	ok    bool
}

// Ok returns a successful Result holding v.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Fail returns a failed Result holding err.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Result[T]{err: err}
}

// IsOk reports whether the result is a success.
func (r Result[T]) IsOk() bool {
	return r.ok
}

// Value returns the success value, or the zero value of T on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the failure, or nil on success.
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	if r.err == nil {
		return ErrNilFailure
	}
	return r.err
}

// Unwrap returns the value and error as a Go pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.Err()
}
