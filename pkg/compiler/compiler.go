// Package compiler turns OpenStreetMap documents into GeoJSON in a single
// forward pass.
//
// Nodes and ways are finalized as they are read and kept in two registries
// of resolved coordinates; relations resolve their members against whatever
// the registries hold at that point. Only the registries and the emitted
// features stay in memory, never the document itself.
package compiler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/monitoring"
	"github.com/NERVsystems/stdownloader/pkg/tracing"
	"github.com/NERVsystems/stdownloader/pkg/writer"
)

// Format is the encoding of an input document
type Format int

const (
	FormatXML Format = iota
	FormatPBF
)

func (f Format) String() string {
	if f == FormatPBF {
		return "pbf"
	}
	return "xml"
}

// FormatFromPath picks the format from the file name: ".pbf" is PBF,
// anything else XML.
func FormatFromPath(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".pbf") {
		return FormatPBF
	}
	return FormatXML
}

// progressInterval is how often a long pass logs its progress
const progressInterval = 5 * time.Second

// Option configures a Compiler
type Option func(*Compiler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithLogAttrs adds attributes to every record the compiler logs, whichever
// logger is in use.
func WithLogAttrs(args ...any) Option {
	return func(c *Compiler) {
		c.logAttrs = append(c.logAttrs, args...)
	}
}

// WithFormat forces the input format instead of guessing it from the path
func WithFormat(f Format) Option {
	return func(c *Compiler) {
		c.format = f
		c.formatSet = true
	}
}

// WithDroppedRefHook registers fn to be called for every reference the
// compiler skips. fn runs on the compiling goroutine.
func WithDroppedRefHook(fn func(DroppedRef)) Option {
	return func(c *Compiler) {
		c.onDropped = fn
	}
}

// Compiler converts OSM documents to feature collections. A Compiler holds
// only configuration; every call gets its own registries, so one Compiler
// may be used from several goroutines.
type Compiler struct {
	logger    *slog.Logger
	logAttrs  []any
	format    Format
	formatSet bool
	onDropped func(DroppedRef)
}

// New creates a Compiler
func New(opts ...Option) *Compiler {
	c := &Compiler{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "compiler").With(c.logAttrs...)
	return c
}

// Compile converts the document at inputPath and writes the collection to
// outputPath. Nothing is written unless the whole document compiled.
func Compile(ctx context.Context, inputPath, outputPath string, opts ...Option) (*Stats, error) {
	return New(opts...).Compile(ctx, inputPath, outputPath)
}

// Compile converts the document at inputPath and writes the collection to
// outputPath.
func (c *Compiler) Compile(ctx context.Context, inputPath, outputPath string) (stats *Stats, err error) {
	start := time.Now()

	format := c.format
	if !c.formatSet {
		format = FormatFromPath(inputPath)
	}

	ctx, span := tracing.StartSpan(ctx, "compiler.compile",
		trace.WithAttributes(tracing.CompileAttributes(inputPath, outputPath, format.String())...),
	)
	defer func() {
		report := monitoring.ConversionReport{
			Input:   inputPath,
			Output:  outputPath,
			Elapsed: time.Since(start),
			Err:     err,
		}
		if stats != nil {
			report.Features = stats.FeatureCount()
			report.DroppedRefs = stats.DroppedRefs()
		}
		monitoring.ReportConversion(report)
		tracing.EndSpan(span, err)
	}()

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, core.NewError(core.ErrInput, "cannot open input file").
			WithPath(inputPath).
			Wrap(err)
	}
	defer f.Close()

	fc, stats, err := c.run(ctx, f, format)
	if err != nil {
		c.logger.Error("conversion failed", "input", inputPath, "error", err)
		return stats, err
	}

	if err := writer.Write(fc, outputPath); err != nil {
		c.logger.Error("failed to write output", "output", outputPath, "error", err)
		return stats, err
	}

	stats.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int(tracing.AttrFeatureCount, stats.FeatureCount()),
		attribute.Int(tracing.AttrDroppedRefs, stats.DroppedRefs()),
		attribute.Float64(tracing.AttrCompileSeconds, stats.Elapsed.Seconds()),
	)

	c.logger.Info("conversion completed",
		"input", inputPath,
		"output", outputPath,
		"features", stats.FeatureCount(),
		"dropped_refs", stats.DroppedRefs(),
		"seconds", stats.Elapsed.Seconds())

	return stats, nil
}

// Run performs the pass over an already open stream and returns the
// collection without writing it.
func (c *Compiler) Run(ctx context.Context, r io.Reader) (*geojson.FeatureCollection, *Stats, error) {
	return c.run(ctx, r, c.format)
}

func (c *Compiler) newScanner(ctx context.Context, r io.Reader, format Format) osm.Scanner {
	if format == FormatPBF {
		// One decoder keeps objects in file order
		return osmpbf.New(ctx, r, 1)
	}
	return newXMLScanner(r)
}

func (c *Compiler) run(ctx context.Context, r io.Reader, format Format) (*geojson.FeatureCollection, *Stats, error) {
	start := time.Now()
	p := newPass(c.onDropped)

	// Once started a pass runs to completion; ctx only carries the trace
	scanner := c.newScanner(context.WithoutCancel(ctx), r, format)
	defer scanner.Close()

	tck := time.NewTicker(progressInterval)
	defer tck.Stop()

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			if err := p.node(o); err != nil {
				c.record(p.stats)
				return nil, p.stats, err
			}
		case *osm.Way:
			p.way(o)
		case *osm.Relation:
			p.relation(o)
		}

		select {
		case <-tck.C:
			c.logger.Debug("compiling",
				"nodes", p.stats.Nodes,
				"ways", p.stats.Ways,
				"relations", p.stats.Relations)
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		c.record(p.stats)
		monitoring.RecordError("compiler", "parse")
		tracing.RecordError(ctx, err)
		return nil, p.stats, core.NewError(core.ErrParse, "malformed input document").Wrap(err)
	}

	p.stats.Elapsed = time.Since(start)
	c.record(p.stats)

	tracing.SetAttributes(ctx,
		attribute.Int(tracing.AttrNodeCount, p.stats.Nodes),
		attribute.Int(tracing.AttrWayCount, p.stats.Ways),
		attribute.Int(tracing.AttrRelationCount, p.stats.Relations),
	)

	return p.fc, p.stats, nil
}

func (c *Compiler) record(s *Stats) {
	monitoring.RecordPrimitives("node", s.Nodes)
	monitoring.RecordPrimitives("way", s.Ways)
	monitoring.RecordPrimitives("relation", s.Relations)
	for geom, n := range s.Features {
		monitoring.RecordFeatures(geom, n)
	}
	monitoring.RecordDroppedRefs(string(DropWayNode), s.DroppedNodeRefs)
	monitoring.RecordDroppedRefs(string(DropMember), s.DroppedMemberRefs)
	monitoring.RecordDroppedRefs(string(DropUnsupportedMember), s.UnsupportedMembers)
}
