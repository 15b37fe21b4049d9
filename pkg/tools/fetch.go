package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/stdownloader/pkg/acquire"
	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/pipeline"
)

// FetchExtractInput defines the input parameters for a download
type FetchExtractInput struct {
	Dataset   string    `json:"dataset"`
	BBox      BBoxInput `json:"bbox"`
	TargetDir string    `json:"target_dir,omitempty"`
	Engine    string    `json:"engine,omitempty"`
	APIKey    string    `json:"api_key,omitempty"`
	// OutputDir, when set, also converts the extract to <output_dir>/<dataset>.geojson
	OutputDir string `json:"output_dir,omitempty"`
}

// FetchExtractOutput reports where the extract was stored
type FetchExtractOutput struct {
	Path       string             `json:"path"`
	Dataset    string             `json:"dataset"`
	Engine     string             `json:"engine"`
	JobID      string             `json:"job_id,omitempty"`
	Conversion *ConversionSummary `json:"conversion,omitempty"`
}

// engineOptions lets tests point the engines at a local server
var engineOptions []acquire.Option

// FetchExtractTool returns a tool definition for downloading an extract
func FetchExtractTool() mcp.Tool {
	return mcp.NewTool("fetch_extract",
		mcp.WithDescription("Download the raw data of a dataset for a bounding box, optionally converting it to GeoJSON"),
		mcp.WithString("dataset",
			mcp.Required(),
			mcp.Description("Dataset name; also the downloaded file name"),
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
		mcp.WithString("target_dir",
			mcp.Description("Download directory"),
			mcp.DefaultString(acquire.DefaultTargetDir),
		),
		mcp.WithString("engine",
			mcp.Description("Download engine"),
			mcp.Enum(acquire.EngineOSM, acquire.EngineEarthExplorer),
			mcp.DefaultString(acquire.EngineOSM),
		),
		mcp.WithString("api_key",
			mcp.Description("USGS M2M API key, earthexplorer engine only"),
		),
		mcp.WithString("output_dir",
			mcp.Description("If set, convert the download to GeoJSON in this directory"),
		),
	)
}

// HandleFetchExtract implements extract download
func HandleFetchExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("fetch_extract", func(ctx context.Context, input FetchExtractInput, logger *slog.Logger) (interface{}, error) {
		if strings.TrimSpace(input.Dataset) == "" {
			return nil, core.NewError(core.ErrInput, "dataset is required")
		}
		bbox, err := input.BBox.BoundingBox()
		if err != nil {
			return nil, err
		}

		engineName := input.Engine
		if engineName == "" {
			engineName = acquire.EngineOSM
		}
		targetDir := input.TargetDir
		if targetDir == "" {
			targetDir = acquire.DefaultTargetDir
		}

		opts := append([]acquire.Option{acquire.WithTargetDir(targetDir), acquire.WithLogger(logger)}, engineOptions...)
		engine, err := acquire.NewEngine(engineName, input.Dataset, input.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		if err := engine.Configure(bbox); err != nil {
			return nil, err
		}

		out := FetchExtractOutput{Dataset: input.Dataset, Engine: engineName}

		if input.OutputDir == "" {
			path, err := engine.Fetch(ctx)
			if err != nil {
				return nil, err
			}
			out.Path = path
			return out, nil
		}

		result, err := pipeline.Run(ctx, engine, input.OutputDir)
		if err != nil {
			return nil, err
		}
		summary := summarize(result.Input, result.Output, result.Stats)
		out.Path = result.Input
		out.JobID = result.JobID
		out.Conversion = &summary
		return out, nil
	})(ctx, req)
}
