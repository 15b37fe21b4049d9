// Package pipeline chains acquisition and compilation: fetch an extract for
// a bounding box, then turn it into a GeoJSON feature collection.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/stdownloader/pkg/acquire"
	"github.com/NERVsystems/stdownloader/pkg/compiler"
	"github.com/NERVsystems/stdownloader/pkg/tracing"
)

// Result describes one finished conversion
type Result struct {
	JobID  string          `json:"job_id"`
	Input  string          `json:"input"`
	Output string          `json:"output"`
	Stats  *compiler.Stats `json:"stats,omitempty"`
}

// Job is one input file to convert
type Job struct {
	Input  string
	Output string
}

// OutputPath returns <dir>/<name>.geojson where name is the input file name
// without its extension.
func OutputPath(dir, input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+".geojson")
}

// Run fetches the engine's extract and compiles it to
// <outputDir>/<dataset>.geojson.
func Run(ctx context.Context, engine acquire.Engine, outputDir string, opts ...compiler.Option) (result *Result, err error) {
	jobID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String(tracing.AttrJobID, jobID),
			attribute.String(tracing.AttrDataset, engine.Dataset()),
		),
	)
	defer func() { tracing.EndSpan(span, err) }()

	logger := slog.Default().With("job_id", jobID, "component", "pipeline")
	logger.Info("fetching extract", "dataset", engine.Dataset())

	input, err := engine.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", engine.Dataset(), err)
	}

	output := filepath.Join(outputDir, engine.Dataset()+".geojson")
	stats, err := compiler.New(jobOptions(opts, jobID)...).
		Compile(ctx, input, output)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", input, err)
	}
	logger.Info("pipeline completed", "output", output, "features", stats.FeatureCount())

	return &Result{JobID: jobID, Input: input, Output: output, Stats: stats}, nil
}

// ConvertAll compiles every job with at most limit conversions in flight.
// Results are in job order. On failure the first error is returned and
// results of jobs that did not finish are left zero.
func ConvertAll(ctx context.Context, jobs []Job, limit int, opts ...compiler.Option) ([]Result, error) {
	if limit < 1 {
		limit = 1
	}

	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, job := range jobs {
		g.Go(func() error {
			// Jobs not yet started are skipped once another has failed
			if gctx.Err() != nil {
				return nil
			}

			jobID := uuid.NewString()

			stats, err := compiler.New(jobOptions(opts, jobID)...).
				Compile(gctx, job.Input, job.Output)
			if err != nil {
				return fmt.Errorf("convert %s: %w", job.Input, err)
			}

			results[i] = Result{JobID: jobID, Input: job.Input, Output: job.Output, Stats: stats}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// jobOptions tags the compiler's log records with the job id. opts is
// shared between jobs, so it is copied rather than appended to.
func jobOptions(opts []compiler.Option, jobID string) []compiler.Option {
	out := make([]compiler.Option, 0, len(opts)+1)
	out = append(out, opts...)
	return append(out, compiler.WithLogAttrs("job_id", jobID))
}
