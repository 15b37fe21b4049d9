package acquire

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/geo"
	"github.com/NERVsystems/stdownloader/pkg/monitoring"
	"github.com/NERVsystems/stdownloader/pkg/osm"
	"github.com/NERVsystems/stdownloader/pkg/tracing"
)

// Engine names
const (
	EngineOSM           = "osm"
	EngineEarthExplorer = "earthexplorer"
)

// OverpassMapURL is the Overpass endpoint returning raw OSM XML for a bbox
const OverpassMapURL = osm.OverpassBaseURL + "/map"

const (
	fetchCacheSize = 128
	fetchCacheTTL  = time.Hour
)

var (
	fetchCache     *expirable.LRU[string, string]
	fetchCacheOnce sync.Once
)

func cache() *expirable.LRU[string, string] {
	fetchCacheOnce.Do(func() {
		fetchCache = expirable.NewLRU[string, string](fetchCacheSize, nil, fetchCacheTTL)
	})
	return fetchCache
}

// PurgeCache forgets every cached fetch
func PurgeCache() {
	cache().Purge()
}

// OverpassEngine downloads OSM XML through the Overpass map endpoint
type OverpassEngine struct {
	*Downloader
	bbox *geo.BoundingBox
}

// NewOverpassEngine creates an engine for dataset
func NewOverpassEngine(dataset string, opts ...Option) *OverpassEngine {
	return &OverpassEngine{
		Downloader: newDownloader(dataset, EngineOSM, OverpassMapURL, opts...),
	}
}

// Configure sets the bounding box
func (e *OverpassEngine) Configure(bbox geo.BoundingBox) error {
	if err := validateBBox(bbox); err != nil {
		return err
	}
	e.bbox = &bbox
	return nil
}

// URL returns the request URL. The bbox parameter is west,south,east,north
// with literal commas.
func (e *OverpassEngine) URL() (string, error) {
	if e.bbox == nil {
		return "", core.NewError(core.ErrMissingBBox, "bounding box must be set before fetching").
			WithGuidance("Call Configure with a south,west,north,east bounding box")
	}
	return e.baseURL + "?bbox=" + e.bbox.OverpassParam(), nil
}

// Fetch downloads <target>/<dataset>.osm, reusing a recent download of the
// same box when its file is still present.
func (e *OverpassEngine) Fetch(ctx context.Context) (path string, err error) {
	bboxStr := ""
	if e.bbox != nil {
		bboxStr = e.bbox.String()
	}

	ctx, span := tracing.StartSpan(ctx, "acquire.fetch",
		trace.WithAttributes(tracing.FetchAttributes(EngineOSM, e.dataset, bboxStr)...),
	)
	defer func() { tracing.EndSpan(span, err) }()

	url, err := e.URL()
	if err != nil {
		return "", err
	}

	key := e.dataset + "|" + bboxStr + "|" + e.targetDir
	if cached, ok := cache().Get(key); ok {
		if _, statErr := os.Stat(cached); statErr == nil {
			monitoring.RecordCacheHit("fetch")
			span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, true))
			e.logger.Info("using cached extract", "path", cached)
			return cached, nil
		}
		cache().Remove(key)
	}
	monitoring.RecordCacheMiss("fetch")
	span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, false))

	path, err = e.download(ctx, EngineOSM, url, e.dataset+".osm")
	if err != nil {
		return "", err
	}

	cache().Add(key, path)
	span.SetAttributes(attribute.String(tracing.AttrFetchPath, path))
	return path, nil
}
