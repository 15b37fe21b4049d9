package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/geojson"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/index"
	"github.com/NERVsystems/stdownloader/pkg/monitoring"
)

// Loaded indexes, keyed by path. A rewrite of the file is picked up once the
// entry expires.
var indexCache = expirable.NewLRU[string, *index.Index](indexCacheSize, nil, indexCacheTTL)

// QueryFeaturesInput defines the input parameters for a feature query
type QueryFeaturesInput struct {
	GeoJSONPath string    `json:"geojson_path"`
	BBox        BBoxInput `json:"bbox"`
	Limit       int       `json:"limit,omitempty"`
}

// QueryFeaturesOutput holds the matching features
type QueryFeaturesOutput struct {
	Total     int                        `json:"total"`
	Returned  int                        `json:"returned"`
	Truncated bool                       `json:"truncated,omitempty"`
	Features  *geojson.FeatureCollection `json:"features"`
}

// QueryFeaturesTool returns a tool definition for querying converted output
func QueryFeaturesTool() mcp.Tool {
	return mcp.NewTool("query_features",
		mcp.WithDescription("Find the features of a GeoJSON FeatureCollection that intersect a bounding box"),
		mcp.WithString("geojson_path",
			mcp.Required(),
			mcp.Description("Path of a GeoJSON file written by osm_to_geojson"),
		),
		mcp.WithObject("bbox",
			mcp.Required(),
			mcp.Description("Bounding box as {south, west, north, east} in decimal degrees"),
			mcp.Properties(map[string]any{
				"south": map[string]any{"type": "number"},
				"west":  map[string]any{"type": "number"},
				"north": map[string]any{"type": "number"},
				"east":  map[string]any{"type": "number"},
			}),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of features to return"),
			mcp.DefaultNumber(defaultQueryLimit),
		),
	)
}

func loadIndex(path string) (*index.Index, error) {
	if ix, ok := indexCache.Get(path); ok {
		monitoring.RecordCacheHit("index")
		return ix, nil
	}
	monitoring.RecordCacheMiss("index")

	ix, err := index.Load(path)
	if err != nil {
		return nil, err
	}
	indexCache.Add(path, ix)
	return ix, nil
}

// HandleQueryFeatures implements the bounding box feature query
func HandleQueryFeatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("query_features", func(ctx context.Context, input QueryFeaturesInput, logger *slog.Logger) (interface{}, error) {
		if strings.TrimSpace(input.GeoJSONPath) == "" {
			return nil, core.NewError(core.ErrInput, "geojson_path is required")
		}
		bbox, err := input.BBox.BoundingBox()
		if err != nil {
			return nil, err
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultQueryLimit
		}
		if limit > maxQueryLimit {
			limit = maxQueryLimit
		}

		ix, err := loadIndex(input.GeoJSONPath)
		if err != nil {
			return nil, err
		}

		matches := ix.Search(bbox)
		out := QueryFeaturesOutput{
			Total:    len(matches),
			Features: geojson.NewFeatureCollection(),
		}
		if len(matches) > limit {
			matches = matches[:limit]
			out.Truncated = true
		}
		out.Features.Features = matches
		out.Returned = len(matches)

		logger.Debug("query completed", "path", input.GeoJSONPath, "bbox", bbox.String(), "total", out.Total)
		return out, nil
	})(ctx, req)
}
