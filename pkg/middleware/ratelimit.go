package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/PathRouter/pkg/handler"
	"github.com/karlseguin/ccache/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitStrategy selects how clients are told apart.
type RateLimitStrategy string

const (
	// StrategyIP keys buckets by client IP.
	StrategyIP RateLimitStrategy = "ip"
	// StrategyUser keys buckets by authenticated user ID, falling back to IP.
	StrategyUser RateLimitStrategy = "user"
	// StrategyCustom keys buckets with RateLimitConfig.KeyExtractor.
	StrategyCustom RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// BucketName identifies the bucket. Routes sharing a name share a limit.
	BucketName string

	// Limit is the number of requests allowed per Window.
	Limit int

	Window time.Duration

	Strategy RateLimitStrategy

	// KeyExtractor is used when Strategy is StrategyCustom.
	KeyExtractor func(*http.Request) (string, error)

	// ExceededHandler replaces the default 429 response.
	ExceededHandler http.Handler
}

// RateLimiter decides whether a request identified by key may proceed. It
// also reports the requests remaining and the time until the bucket refills.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

const (
	limiterGetsPerPromote  = 64
	limiterItemsToPruneDiv = 16

	defaultLimiterEntries    = 5000
	defaultLimiterExpiration = 10 * time.Minute
)

// TokenBucketLimiter keeps one token bucket per key in an LRU cache. Buckets
// hold Limit tokens and refill at Limit per Window.
type TokenBucketLimiter struct {
	now        func() time.Time
	expiration time.Duration
	cache      *ccache.Cache
	mu         sync.Mutex
}

// TokenBucketOption configures a TokenBucketLimiter.
type TokenBucketOption func(*TokenBucketLimiter)

// WithClock replaces the limiter's time source.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(l *TokenBucketLimiter) { l.now = now }
}

// WithBucketExpiration sets how long an idle bucket is kept.
func WithBucketExpiration(d time.Duration) TokenBucketOption {
	return func(l *TokenBucketLimiter) { l.expiration = d }
}

// NewTokenBucketLimiter creates a limiter holding at most maxEntries buckets.
func NewTokenBucketLimiter(maxEntries int64, opts ...TokenBucketOption) *TokenBucketLimiter {
	if maxEntries <= 0 {
		maxEntries = defaultLimiterEntries
	}
	prune := uint32(maxEntries / limiterItemsToPruneDiv)
	if prune == 0 {
		prune = 1
	}

	configuration := ccache.Configure()
	configuration.MaxSize(maxEntries)
	configuration.ItemsToPrune(prune)
	configuration.GetsPerPromote(limiterGetsPerPromote)

	l := &TokenBucketLimiter{
		now:        time.Now,
		expiration: defaultLimiterExpiration,
		cache:      ccache.New(configuration),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stop releases the cache's background worker.
func (l *TokenBucketLimiter) Stop() {
	l.cache.Stop()
}

func (l *TokenBucketLimiter) findOrCreate(key string, limit int, window time.Duration) *rate.Limiter {
	cacheKey := fmt.Sprintf("%d/%s:%s", limit, window, key)

	l.mu.Lock()
	defer l.mu.Unlock()

	if item := l.cache.Get(cacheKey); item != nil && !item.Expired() {
		item.Extend(l.expiration)
		return item.Value().(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit)
	l.cache.Set(cacheKey, limiter, l.expiration)
	return limiter
}

// Allow implements RateLimiter. A non-positive limit is treated as 1 and a
// non-positive window as one second.
func (l *TokenBucketLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	now := l.now()
	limiter := l.findOrCreate(key, limit, window)
	allowed := limiter.AllowN(now, 1)

	tokens := limiter.TokensAt(now)
	perToken := window / time.Duration(limit)

	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}

	var reset time.Duration
	if allowed {
		reset = time.Duration((float64(limit) - tokens) * float64(perToken))
	} else {
		reset = time.Duration((1 - tokens) * float64(perToken))
	}
	if reset < 0 {
		reset = 0
	}
	return allowed, remaining, reset
}

func rateLimitKey(r *http.Request, config *RateLimitConfig) (string, error) {
	switch config.Strategy {
	case StrategyUser:
		if id := GetUserID(r); id != "" {
			return "user:" + id, nil
		}
	case StrategyCustom:
		if config.KeyExtractor != nil {
			return config.KeyExtractor(r)
		}
	}
	return "ip:" + ClientIP(r), nil
}

// RateLimit creates a middleware that enforces config using limiter. Every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. Rejected requests get 429 with a Retry-After header.
func RateLimit(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if config == nil || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := rateLimitKey(r, config)
			if err != nil {
				logger.Error("Failed to extract rate limit key",
					zap.Error(err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				_ = handler.DefaultErrorResponse(http.StatusText(http.StatusInternalServerError)).Write(w)
				return
			}

			allowed, remaining, reset := limiter.Allow(config.BucketName+":"+key, config.Limit, config.Window)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(reset.Seconds())), 10))

				logger.Warn("Rate limit exceeded",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("bucket", config.BucketName),
					zap.String("key", key),
					zap.Int("limit", config.Limit),
				)

				if config.ExceededHandler != nil {
					config.ExceededHandler.ServeHTTP(w, r)
					return
				}
				_ = handler.ErrorResponse(http.StatusTooManyRequests, "Too Many Requests").Write(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
