package params

import (
	"context"
	"sort"

	"github.com/julienschmidt/httprouter"
)

type contextKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p Params) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the Params stored in ctx, or nil.
func FromContext(ctx context.Context) Params {
	p, _ := ctx.Value(contextKey{}).(Params)
	return p
}

// FromHTTPRouter converts the dispatch table's parameter slice.
// The last value wins for repeated keys.
func FromHTTPRouter(ps httprouter.Params) Params {
	out := make(Params, len(ps))
	for _, p := range ps {
		out[p.Key] = p.Value
	}
	return out
}

// HTTPRouter converts p to httprouter.Params ordered by key.
func (p Params) HTTPRouter() httprouter.Params {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(httprouter.Params, 0, len(keys))
	for _, k := range keys {
		out = append(out, httprouter.Param{Key: k, Value: p[k]})
	}
	return out
}
