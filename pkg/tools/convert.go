package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/stdownloader/pkg/compiler"
	"github.com/NERVsystems/stdownloader/pkg/core"
)

// OSMToGeoJSONInput defines the input parameters for a conversion
type OSMToGeoJSONInput struct {
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
}

// ConversionSummary is returned after a successful conversion
type ConversionSummary struct {
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	Features     int            `json:"features"`
	ByGeometry   map[string]int `json:"by_geometry"`
	Nodes        int            `json:"nodes"`
	Ways         int            `json:"ways"`
	Relations    int            `json:"relations"`
	DroppedRefs  int            `json:"dropped_refs"`
	ElapsedMilli int64          `json:"elapsed_ms"`
}

func summarize(input, output string, stats *compiler.Stats) ConversionSummary {
	return ConversionSummary{
		Input:        input,
		Output:       output,
		Features:     stats.FeatureCount(),
		ByGeometry:   stats.Features,
		Nodes:        stats.Nodes,
		Ways:         stats.Ways,
		Relations:    stats.Relations,
		DroppedRefs:  stats.DroppedRefs(),
		ElapsedMilli: stats.Elapsed.Milliseconds(),
	}
}

// OSMToGeoJSONTool returns a tool definition for converting OSM files
func OSMToGeoJSONTool() mcp.Tool {
	return mcp.NewTool("osm_to_geojson",
		mcp.WithDescription("Convert an OpenStreetMap file into a GeoJSON FeatureCollection of points, lines, polygons and multipolygons"),
		mcp.WithString("input_path",
			mcp.Required(),
			mcp.Description("Path of the .osm (XML) or .osm.pbf file to convert"),
		),
		mcp.WithString("output_path",
			mcp.Required(),
			mcp.Description("Path of the GeoJSON file to write"),
		),
	)
}

// HandleOSMToGeoJSON implements OSM to GeoJSON conversion
func HandleOSMToGeoJSON(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("osm_to_geojson", func(ctx context.Context, input OSMToGeoJSONInput, logger *slog.Logger) (interface{}, error) {
		if strings.TrimSpace(input.InputPath) == "" {
			return nil, core.NewError(core.ErrInput, "input_path is required")
		}
		if strings.TrimSpace(input.OutputPath) == "" {
			return nil, core.NewError(core.ErrOutput, "output_path is required")
		}

		stats, err := compiler.Compile(ctx, input.InputPath, input.OutputPath, compiler.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		return summarize(input.InputPath, input.OutputPath, stats), nil
	})(ctx, req)
}
