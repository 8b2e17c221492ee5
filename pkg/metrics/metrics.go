package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	MediaUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_uploads_total",
			Help: "Total number of media store uploads.",
		},
		[]string{"status"}, // status: success, failure
	)

	MediaUploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_upload_duration_seconds",
			Help:    "Duration of media store uploads.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	EmbeddedPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedded_payloads_total",
			Help: "Embedded image payloads found in record bodies.",
		},
		[]string{"kind"}, // kind: encoded_inline, raw_bytes, malformed
	)

	AssetCleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "asset_cleanup_failures_total",
			Help: "Hosted assets that could not be deleted.",
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "college_cache_lookups_total",
			Help: "College listing cache lookups.",
		},
		[]string{"result"}, // result: hit, miss, error
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Collectors are
// usable before Init; they just aren't exported.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			MediaUploadsTotal,
			MediaUploadDuration,
			EmbeddedPayloadsTotal,
			AssetCleanupFailuresTotal,
			CacheLookupsTotal,
		)
	})
}
