package params

import (
	"fmt"
	"strings"
)

// Pattern is a validated route pattern. It is immutable and safe for
// concurrent use.
type Pattern struct {
	raw      string
	segments []string
	names    []string // capture name per segment, "" for literals
}

// Compile validates pattern. Capture names must be non-empty and unique, and
// catch-all segments ("*name") are rejected because segment counts must match
// exactly.
func Compile(pattern string) (*Pattern, error) {
	segments := split(pattern)
	names := make([]string, len(segments))
	seen := make(map[string]struct{}, len(segments))

	for i, seg := range segments {
		if strings.HasPrefix(seg, "*") {
			return nil, &MalformedRouteError{Pattern: pattern, Reason: fmt.Sprintf("catch-all segment %q is not supported", seg)}
		}
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		name := seg[1:]
		if name == "" {
			return nil, &MalformedRouteError{Pattern: pattern, Reason: fmt.Sprintf("segment %d has an empty parameter name", i+1)}
		}
		if _, dup := seen[name]; dup {
			return nil, &MalformedRouteError{Pattern: pattern, Reason: fmt.Sprintf("parameter %q is declared twice", name)}
		}
		seen[name] = struct{}{}
		names[i] = name
	}

	return &Pattern{raw: pattern, segments: segments, names: names}, nil
}

// MustCompile is like Compile but panics if the pattern is invalid.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the normalized pattern: a leading slash and no trailing slash.
// The root is "/".
func (p *Pattern) String() string {
	return "/" + strings.Join(p.segments, "/")
}

// Names returns the capture names in positional order.
func (p *Pattern) Names() []string {
	out := make([]string, 0, len(p.names))
	for _, n := range p.names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// NumSegments returns the number of segments after normalization.
func (p *Pattern) NumSegments() int {
	return len(p.segments)
}

// Extract binds captures positionally without comparing literal segments.
func (p *Pattern) Extract(path string) (Params, error) {
	return p.extract(path, false)
}

// Match binds captures and requires literal segments to be equal.
func (p *Pattern) Match(path string) (Params, bool) {
	out, err := p.extract(path, true)
	return out, err == nil
}

func (p *Pattern) extract(path string, literals bool) (Params, error) {
	segments := split(path)
	if len(segments) != len(p.segments) {
		return nil, &MalformedRouteError{
			Pattern: p.raw,
			Path:    path,
			Reason:  fmt.Sprintf("pattern has %d segments, path has %d", len(p.segments), len(segments)),
		}
	}

	out := make(Params, len(p.names))
	for i, seg := range segments {
		name := p.names[i]
		if name == "" {
			if literals && seg != p.segments[i] {
				return nil, &MalformedRouteError{
					Pattern: p.raw,
					Path:    path,
					Reason:  fmt.Sprintf("literal %q does not match %q", p.segments[i], seg),
				}
			}
			continue
		}
		if seg == "" {
			return nil, &MalformedRouteError{
				Pattern: p.raw,
				Path:    path,
				Reason:  fmt.Sprintf("parameter %q matched an empty segment", name),
			}
		}
		out[name] = seg
	}
	return out, nil
}
