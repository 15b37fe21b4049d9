package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/geo"
)

// BBoxInput is the bounding box object accepted by the tools
type BBoxInput struct {
	South *float64 `json:"south"`
	West  *float64 `json:"west"`
	North *float64 `json:"north"`
	East  *float64 `json:"east"`
}

// BoundingBox checks that all four edges are present and valid
func (b BBoxInput) BoundingBox() (geo.BoundingBox, error) {
	if b.South == nil || b.West == nil || b.North == nil || b.East == nil {
		return geo.BoundingBox{}, core.NewError(core.ErrMissingBBox, "bbox needs south, west, north and east").
			WithGuidance(`Example: {"south": 32.868, "west": -117.215, "north": 32.875, "east": -117.208}`)
	}

	bbox := geo.NewBoundingBox(*b.South, *b.West, *b.North, *b.East)
	if err := bbox.Validate(); err != nil {
		return geo.BoundingBox{}, core.NewError(core.ErrInvalidBBox, "invalid bounding box").Wrap(err)
	}
	return bbox, nil
}

// ErrorResponse returns a tool error result with message
func ErrorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// errorResult turns err into a tool result, keeping the code and guidance
// of *core.Error values.
func errorResult(err error) *mcp.CallToolResult {
	var coded *core.Error
	if errors.As(err, &coded) {
		return coded.ToMCPResult()
	}
	return ErrorResponse(fmt.Sprintf("Failed to process request: %v", err))
}

// InputParser is a generic function to parse request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, ErrorResponse(fmt.Sprintf("Invalid input format: %v", err)), err
	}

	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, ErrorResponse(fmt.Sprintf("Failed to parse input: %v", err)), err
	}

	return input, nil, nil
}

// WithParsedInput is a higher-order function that handles request parsing and error handling
func WithParsedInput[T any](
	handlerName string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (interface{}, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := slog.Default().With("tool", handlerName)

		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Error("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			logger.Error("handler error", "error", err)
			return errorResult(err), nil
		}

		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return ErrorResponse("Failed to generate result"), nil
		}

		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}
