package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Suhaibinator/PathRouter/pkg/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

// Collector owns a Prometheus registry and the router's request metrics.
// Every observed request increments http_requests_total{method,route,status};
// the other metrics depend on Config.
type Collector struct {
	registry *prometheus.Registry
	filter   Filter
	sampler  Sampler

	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	reqSize  *prometheus.HistogramVec
	respSize *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewCollector creates the metrics described by config in a new registry.
func NewCollector(config Config) (*Collector, error) {
	rate := config.SamplingRate
	if rate == 0 {
		rate = 1
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		sampler:  NewRandomSampler(rate),
	}

	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}
	}
	histogramOpts := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
			Buckets:     buckets,
		}
	}

	latencyBuckets := config.LatencyBuckets
	if len(latencyBuckets) == 0 {
		latencyBuckets = DefaultLatencyBuckets
	}
	sizeBuckets := config.SizeBuckets
	if len(sizeBuckets) == 0 {
		sizeBuckets = DefaultSizeBuckets
	}

	routeLabels := []string{"method", "route"}
	statusLabels := []string{"method", "route", "status"}

	c.requests = prometheus.NewCounterVec(counterOpts("http_requests_total", "Total number of HTTP requests"), statusLabels)
	collectors := []prometheus.Collector{c.requests}

	if config.EnableErrors {
		c.errors = prometheus.NewCounterVec(counterOpts("http_errors_total", "Total number of HTTP responses with a 4xx or 5xx status"), statusLabels)
		collectors = append(collectors, c.errors)
	}
	if config.EnableLatency {
		c.latency = prometheus.NewHistogramVec(histogramOpts("http_request_duration_seconds", "HTTP request latency in seconds", latencyBuckets), routeLabels)
		collectors = append(collectors, c.latency)
	}
	if config.EnableThroughput {
		c.reqSize = prometheus.NewHistogramVec(histogramOpts("http_request_size_bytes", "HTTP request size in bytes", sizeBuckets), routeLabels)
		c.respSize = prometheus.NewHistogramVec(histogramOpts("http_response_size_bytes", "HTTP response size in bytes", sizeBuckets), routeLabels)
		collectors = append(collectors, c.reqSize, c.respSize)
	}
	if config.EnableInFlight {
		gaugeOpts := prometheus.GaugeOpts(counterOpts("http_requests_in_flight", "Number of HTTP requests being served"))
		c.inFlight = prometheus.NewGaugeVec(gaugeOpts, routeLabels)
		collectors = append(collectors, c.inFlight)
	}

	var err error
	for _, collector := range collectors {
		err = multierr.Append(err, c.registry.Register(collector))
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Registry returns the registry the metrics live in. Callers may register
// their own collectors on it.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WithFilter returns a copy of c that only observes requests f accepts.
func (c *Collector) WithFilter(f Filter) *Collector {
	cp := *c
	cp.filter = f
	return &cp
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware observes requests served under route. The route label is the
// registered pattern, never the concrete path.
func (c *Collector) Middleware(route string) common.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (c.filter != nil && !c.filter.Filter(r)) || !c.sampler.Sample() {
				next.ServeHTTP(w, r)
				return
			}

			if c.inFlight != nil {
				g := c.inFlight.WithLabelValues(r.Method, route)
				g.Inc()
				defer g.Dec()
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			c.requests.WithLabelValues(r.Method, route, status).Inc()
			if c.latency != nil {
				c.latency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}
			if c.reqSize != nil && r.ContentLength > 0 {
				c.reqSize.WithLabelValues(r.Method, route).Observe(float64(r.ContentLength))
			}
			if c.respSize != nil {
				c.respSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
			}
			if c.errors != nil && rw.statusCode >= 400 {
				c.errors.WithLabelValues(r.Method, route, status).Inc()
			}
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
