package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ndlib/lfstore"
	"github.com/ndlib/lfstore/blobcache"
)

// Metrics holds the Prometheus metrics for a server.
type Metrics struct {
	Requests *prometheus.CounterVec   // lfstore_http_requests_total{route,status}
	Duration *prometheus.HistogramVec // lfstore_http_request_duration_seconds{route}
}

// NewMetrics registers the request metrics with reg, along with gauges read
// from the store and, if given, the blob cache.
func NewMetrics(reg *prometheus.Registry, s *lfstore.Store, cache *blobcache.LRU) *Metrics {
	reg.MustRegister(collectors.NewGoCollector())
	m := &Metrics{
		Requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lfstore_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),

		Duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lfstore_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lfstore_pending_ids",
		Help: "Item ids with queued or running operations",
	}, func() float64 { return float64(s.Pending()) })

	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lfstore_bucket_items",
		Help: "Items placed in the current bucket",
	}, func() float64 {
		_, n := s.Bucket()
		return float64(n)
	})

	if cache != nil {
		promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
			Name: "lfstore_cache_hits_total",
			Help: "Blob reads served from the cache",
		}, func() float64 {
			hits, _ := cache.Stats()
			return float64(hits)
		})
		promauto.With(reg).NewCounterFunc(prometheus.CounterOpts{
			Name: "lfstore_cache_misses_total",
			Help: "Blob reads not in the cache",
		}, func() float64 {
			_, misses := cache.Stats()
			return float64(misses)
		})
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lfstore_cache_bytes",
			Help: "Bytes held in the blob cache",
		}, func() float64 {
			size, _ := cache.Size()
			return float64(size)
		})
	}
	return m
}

// statusWriter records the status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (m *Metrics) wrap(route string, handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		handler(sw, r, ps)
		m.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.Requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	}
}
