// Package params extracts named path parameters from request paths.
//
// A route pattern is a slash-delimited template in which a segment starting
// with ':' names a capture, for example "/hello/:name". Extraction walks the
// pattern and a concrete request path segment by segment and binds every
// capture to the path segment at the same position.
//
// Both the pattern and the path are normalized before they are split: a single
// leading slash is optional, a single trailing slash is ignored, and "" and "/"
// both denote the root, which has no segments. Interior empty segments
// ("/a//b") are kept.
package params

import (
	"errors"
	"fmt"
	"strings"
)

// Params maps capture names to the raw path segments they matched.
// Values are never decoded or coerced.
type Params map[string]string

// Get returns the value bound to name, or "" if there is none.
func (p Params) Get(name string) string {
	return p[name]
}

// Lookup returns the value bound to name and whether it was present.
func (p Params) Lookup(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// ErrMalformedRoute is matched by every *MalformedRouteError via errors.Is.
var ErrMalformedRoute = errors.New("malformed route")

// MalformedRouteError reports a pattern that cannot be compiled, or a path that
// cannot be extracted against a pattern.
type MalformedRouteError struct {
	Pattern string
	Path    string // empty when the pattern itself is invalid
	Reason  string
}

// Error implements the error interface.
func (e *MalformedRouteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed route %q: %s", e.Pattern, e.Reason)
	}
	return fmt.Sprintf("route %q does not fit path %q: %s", e.Pattern, e.Path, e.Reason)
}

// Is lets errors.Is(err, ErrMalformedRoute) succeed.
func (e *MalformedRouteError) Is(target error) bool {
	return target == ErrMalformedRoute
}

// Extract binds every capture in pattern to the path segment at the same
// position. Literal segments are not compared against the path; use Match when
// they must be.
//
// It fails with a *MalformedRouteError when the pattern is invalid, when the
// segment counts differ, or when a capture lines up with an empty segment.
func Extract(pattern, path string) (Params, error) {
	p, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	return p.Extract(path)
}

// Match is Extract with literal validation: every literal segment of pattern
// must equal the corresponding path segment. It reports false for any failure.
func Match(pattern, path string) (Params, bool) {
	p, err := Compile(pattern)
	if err != nil {
		return nil, false
	}
	return p.Match(path)
}

// split normalizes s and returns its segments.
func split(s string) []string {
	s = strings.TrimPrefix(s, "/")
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}
