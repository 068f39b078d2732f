package middleware

import (
	"bytes"
	"net/http"
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// CacheHeader reports whether a response was served from the response cache.
const CacheHeader = "X-Cache"

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

func (c *cachedResponse) writeTo(w http.ResponseWriter, state string) {
	for k, v := range c.header {
		w.Header()[k] = append([]string(nil), v...)
	}
	w.Header().Set(CacheHeader, state)
	w.WriteHeader(c.status)
	_, _ = w.Write(c.body)
}

// captureWriter buffers a response so it can be stored and replayed.
type captureWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.status = status
	c.wroteHeader = true
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.body.Write(b)
}

// ResponseCache stores successful GET responses for a fixed TTL. Concurrent
// misses on the same key run the handler once.
type ResponseCache struct {
	store *cache.Cache
	group singleflight.Group
	ttl   time.Duration
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Flush drops every cached response.
func (c *ResponseCache) Flush() {
	c.store.Flush()
}

// Len reports the number of cached responses, including expired ones not yet
// evicted.
func (c *ResponseCache) Len() int {
	return c.store.ItemCount()
}

// Middleware caches GET responses answered with 200. Other methods and
// statuses pass through untouched.
func (c *ResponseCache) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Host + r.URL.RequestURI()
			if v, found := c.store.Get(key); found {
				v.(*cachedResponse).writeTo(w, "HIT")
				return
			}

			v, _, _ := c.group.Do(key, func() (interface{}, error) {
				cw := &captureWriter{header: make(http.Header), status: http.StatusOK}
				next.ServeHTTP(cw, r)

				resp := &cachedResponse{status: cw.status, header: cw.header, body: cw.body.Bytes()}
				if resp.status == http.StatusOK {
					c.store.Set(key, resp, c.ttl)
				}
				return resp, nil
			})
			v.(*cachedResponse).writeTo(w, "MISS")
		})
	}
}
