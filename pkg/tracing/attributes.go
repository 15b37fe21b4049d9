package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	// Compilation attributes
	AttrInputPath      = "stdl.compile.input_path"
	AttrOutputPath     = "stdl.compile.output_path"
	AttrInputFormat    = "stdl.compile.format"
	AttrFeatureCount   = "stdl.compile.features"
	AttrNodeCount      = "stdl.compile.nodes"
	AttrWayCount       = "stdl.compile.ways"
	AttrRelationCount  = "stdl.compile.relations"
	AttrDroppedRefs    = "stdl.compile.dropped_refs"
	AttrCompileSeconds = "stdl.compile.duration_s"

	// Acquisition attributes
	AttrEngine    = "stdl.fetch.engine"
	AttrDataset   = "stdl.fetch.dataset"
	AttrBBox      = "stdl.fetch.bbox"
	AttrCacheHit  = "stdl.fetch.cache_hit"
	AttrFetchPath = "stdl.fetch.path"
	AttrJobID     = "stdl.job.id"

	// Tool attributes
	AttrToolName       = "mcp.tool.name"
	AttrToolStatus     = "mcp.tool.status"
	AttrToolDuration   = "mcp.tool.duration_ms"
	AttrToolResultSize = "mcp.tool.result_size"

	// Rate limiting attributes
	AttrRateLimitService = "stdl.ratelimit.service"
	AttrRateLimitWaitMs  = "stdl.ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Service names
const (
	ServiceOverpass = "overpass"
	ServiceM2M      = "usgs_m2m"
)

// CompileAttributes returns the attributes describing one compilation
func CompileAttributes(input, output, format string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrInputPath, input),
		attribute.String(AttrOutputPath, output),
		attribute.String(AttrInputFormat, format),
	}
}

// FetchAttributes returns the attributes describing one fetch
func FetchAttributes(engine, dataset, bbox string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEngine, engine),
		attribute.String(AttrDataset, dataset),
		attribute.String(AttrBBox, bbox),
	}
}
