package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Label cardinality is bounded by using the registered route (for example
// /api/v1/orders/:id) rather than the raw URL.
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "Current number of in-flight HTTP requests.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_response_size_bytes",
		Help: "Size of HTTP responses in bytes.",
		Buckets: []float64{
			200, 500, 1 << 10, 2 << 10, 5 << 10,
			10 << 10, 25 << 10, 50 << 10,
			100 << 10, 250 << 10, 500 << 10,
			1 << 20, 2 << 20, 5 << 20,
		},
	}, []string{"method", "path"})

	// Event streams are long-lived; their duration would swamp the latency
	// histogram, so they are counted here instead.
	httpStreams = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_streams_total",
		Help: "Server-sent event and WebSocket streams opened, by route.",
	}, []string{"path"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, httpStreams)
}

const streamKey = "http.stream"

// MarkStream flags the request as a long-lived stream for Metrics.
func MarkStream(c *gin.Context) { c.Set(streamKey, true) }

// Metrics records request counts, latency, in-flight requests and response
// sizes. Streams (see MarkStream) skip the latency histogram.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()

		if c.GetBool(streamKey) {
			httpStreams.WithLabelValues(path).Inc()
			return
		}
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
