// Package metrics collects per-route Prometheus metrics for the router.
package metrics

import (
	"math/rand"
	"net/http"
)

// DefaultLatencyBuckets are the request duration buckets, in seconds.
var DefaultLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// DefaultSizeBuckets are the request and response size buckets, in bytes.
var DefaultSizeBuckets = []float64{100, 1000, 10000, 100000, 1000000}

// Config configures a Collector.
type Config struct {
	Namespace string
	Subsystem string

	// EnableLatency records http_request_duration_seconds.
	EnableLatency bool
	// EnableThroughput records request and response sizes.
	EnableThroughput bool
	// EnableErrors records http_errors_total for 4xx and 5xx responses.
	EnableErrors bool
	// EnableInFlight tracks http_requests_in_flight.
	EnableInFlight bool

	LatencyBuckets []float64
	SizeBuckets    []float64

	// SamplingRate is the fraction of requests observed. Zero means all, a
	// negative rate disables collection.
	SamplingRate float64

	// ConstLabels are attached to every metric.
	ConstLabels map[string]string
}

// Filter decides whether a request is observed.
type Filter interface {
	Filter(r *http.Request) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(r *http.Request) bool

// Filter implements Filter.
func (f FilterFunc) Filter(r *http.Request) bool { return f(r) }

// Sampler decides whether the next request is observed.
type Sampler interface {
	Sample() bool
}

type randomSampler struct {
	rate float64
}

// NewRandomSampler samples requests with probability rate. Rates outside
// [0, 1] are clamped.
func NewRandomSampler(rate float64) Sampler {
	if rate < 0.0 {
		rate = 0.0
	}
	if rate > 1.0 {
		rate = 1.0
	}
	return &randomSampler{rate: rate}
}

func (s *randomSampler) Sample() bool {
	if s.rate >= 1.0 {
		return true
	}
	if s.rate <= 0.0 {
		return false
	}
	return rand.Float64() < s.rate
}
