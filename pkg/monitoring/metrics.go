package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Service name for metrics
	ServiceName = "stdownloader"
)

var (
	// Compilation metrics
	CompilationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_compilations_total",
			Help: "Total number of OSM to GeoJSON compilations",
		},
		[]string{"status"},
	)

	CompilationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stdownloader_compilation_duration_seconds",
			Help:    "Compilation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
	)

	PrimitivesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_primitives_processed_total",
			Help: "Total number of OSM primitives read by the compiler",
		},
		[]string{"type"},
	)

	FeaturesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_features_emitted_total",
			Help: "Total number of GeoJSON features emitted",
		},
		[]string{"geometry"},
	)

	DroppedRefs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_dropped_refs_total",
			Help: "Total number of references that did not resolve and were skipped",
		},
		[]string{"kind"},
	)

	// External service metrics
	ExternalServiceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_external_service_requests_total",
			Help: "Total number of external service requests",
		},
		[]string{"service", "operation", "status"},
	)

	ExternalServiceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stdownloader_external_service_request_duration_seconds",
			Help:    "External service request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 180.0},
		},
		[]string{"service", "operation"},
	)

	DownloadedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_downloaded_bytes_total",
			Help: "Total bytes written to local storage by fetchers",
		},
		[]string{"engine"},
	)

	// Rate limiting metrics
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"service"},
	)

	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stdownloader_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Tool metrics
	ToolRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_tool_requests_total",
			Help: "Total number of MCP tool requests processed",
		},
		[]string{"tool", "status"},
	)

	ToolRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stdownloader_tool_request_duration_seconds",
			Help:    "MCP tool request duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0},
		},
		[]string{"tool"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stdownloader_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stdownloader_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stdownloader_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stdownloader_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)
)

// ServiceHealth is the body served by the health endpoint
type ServiceHealth struct {
	Service       string                 `json:"service"`
	Version       string                 `json:"version"`
	Status        string                 `json:"status"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     time.Time              `json:"start_time"`
	Connections   map[string]ConnStatus  `json:"connections"`
	Metrics       map[string]interface{} `json:"metrics,omitempty"`

	Conversions    ConversionTotals  `json:"conversions"`
	LastConversion *ConversionStatus `json:"last_conversion,omitempty"`
}

// ConnStatus is the last observed state of one upstream service
type ConnStatus struct {
	Status    string `json:"status"` // ConnConnected, ConnSlow or ConnError
	Latency   int64  `json:"latency_ms,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// RecordCompilation records the outcome of one compile call
func RecordCompilation(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	CompilationsTotal.WithLabelValues(status).Inc()
	CompilationDuration.Observe(duration.Seconds())
}

func RecordPrimitives(primitiveType string, count int) {
	PrimitivesProcessed.WithLabelValues(primitiveType).Add(float64(count))
}

func RecordFeatures(geometry string, count int) {
	FeaturesEmitted.WithLabelValues(geometry).Add(float64(count))
}

func RecordDroppedRefs(kind string, count int) {
	DroppedRefs.WithLabelValues(kind).Add(float64(count))
}

func RecordExternalServiceRequest(service, operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ExternalServiceRequestsTotal.WithLabelValues(service, operation, status).Inc()
	ExternalServiceRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

func RecordDownload(engine string, bytes int64) {
	DownloadedBytes.WithLabelValues(engine).Add(float64(bytes))
}

func RecordToolRequest(tool string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ToolRequestsTotal.WithLabelValues(tool, status).Inc()
	ToolRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

func RecordRateLimitExceeded(service string) {
	RateLimitExceeded.WithLabelValues(service).Inc()
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
