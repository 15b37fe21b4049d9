package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/stdownloader/pkg/acquire"
	"github.com/NERVsystems/stdownloader/pkg/coords"
	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/monitoring"
	"github.com/NERVsystems/stdownloader/pkg/osm"
	"github.com/NERVsystems/stdownloader/pkg/pipeline"
	"github.com/NERVsystems/stdownloader/pkg/server"
	"github.com/NERVsystems/stdownloader/pkg/tracing"
	ver "github.com/NERVsystems/stdownloader/pkg/version"
)

var (
	showVersionFlag bool
	debug           bool
	serve           bool
	userAgent       string

	// Download flags
	dataset   string
	bboxFlag  string
	targetDir string
	engine    string
	apiKey    string
	retries   int

	// Conversion flags
	inputFlag string
	output    string
	outputDir string
	jobs      int

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Rate limits
	overpassRPS   float64
	overpassBurst int
	m2mRPS        float64
	m2mBurst      int
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&serve, "serve", false, "Run the MCP tool server on stdin/stdout")
	flag.StringVar(&userAgent, "user-agent", osm.DefaultUserAgent, "User-Agent string for upstream requests")

	flag.StringVar(&dataset, "dataset", "", "Dataset name; the download is stored as <target-dir>/<dataset>.osm")
	flag.StringVar(&bboxFlag, "bbox", "", "Bounding box as south,west,north,east in decimal degrees, or SW,NE as MGRS grid references")
	flag.StringVar(&targetDir, "target-dir", acquire.DefaultTargetDir, "Download directory")
	flag.StringVar(&engine, "engine", acquire.EngineOSM, "Download engine: osm, earthexplorer")
	flag.StringVar(&apiKey, "api-key", os.Getenv("M2M_API_KEY"), "USGS M2M API key for the earthexplorer engine")
	flag.IntVar(&retries, "retries", core.DefaultRetryOptions.MaxAttempts, "Attempts per download request")

	flag.StringVar(&inputFlag, "input", "", "Comma-separated OSM files (.osm or .osm.pbf) to convert")
	flag.StringVar(&output, "output", "", "Output GeoJSON file (single input only)")
	flag.StringVar(&outputDir, "output-dir", "", "Directory for GeoJSON output (default: next to the input, or -target-dir after a download)")
	flag.IntVar(&jobs, "jobs", 1, "Conversions to run in parallel")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", false, "Enable Prometheus metrics and health endpoints")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	flag.Float64Var(&overpassRPS, "overpass-rps", 1.0, "Overpass rate limit in requests per second")
	flag.IntVar(&overpassBurst, "overpass-burst", 1, "Overpass rate limit burst size")
	flag.Float64Var(&m2mRPS, "m2m-rps", 2.0, "USGS M2M rate limit in requests per second")
	flag.IntVar(&m2mBurst, "m2m-burst", 2, "USGS M2M rate limit burst size")
}

func main() {
	flag.Parse()

	var logLevel slog.Level
	if debug {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		// Continue without tracing
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()

		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	if userAgent != osm.DefaultUserAgent {
		osm.SetUserAgent(userAgent)
	}
	if overpassRPS != 1.0 || overpassBurst != 1 {
		osm.UpdateOverpassRateLimits(overpassRPS, overpassBurst)
	}
	if m2mRPS != 2.0 || m2mBurst != 2 {
		osm.UpdateM2MRateLimits(m2mRPS, m2mBurst)
	}

	logger.Info("starting stdownloader",
		"version", ver.BuildVersion,
		"log_level", logLevel.String(),
		"user_agent", userAgent,
		"overpass_rps", overpassRPS,
		"overpass_burst", overpassBurst,
		"monitoring_enabled", enableMonitoring,
		"monitoring_addr", monitoringAddr)

	if enableMonitoring {
		stopMonitoring := startMonitoring(logger)
		defer stopMonitoring()
	}

	switch {
	case serve:
		err = runServer(ctx, logger)
	case inputFlag != "":
		err = runConvert(ctx, logger, splitList(inputFlag), output, outputDir, jobs)
	case dataset != "" || bboxFlag != "":
		err = runFetch(ctx, logger)
	default:
		flag.Usage()
		stop()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func runServer(ctx context.Context, logger *slog.Logger) error {
	s, err := server.NewServer(server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return s.RunWithContext(ctx)
}

// runFetch downloads the extract and converts it
func runFetch(ctx context.Context, logger *slog.Logger) error {
	if dataset == "" {
		return core.NewError(core.ErrInput, "-dataset is required")
	}
	if bboxFlag == "" {
		return core.NewError(core.ErrMissingBBox, "-bbox is required").
			WithGuidance("Use -bbox south,west,north,east")
	}
	bbox, err := coords.ParseBoundingBox(bboxFlag)
	if err != nil {
		return core.NewError(core.ErrInvalidBBox, "invalid -bbox").Wrap(err)
	}

	retry := core.DefaultRetryOptions
	retry.MaxAttempts = retries

	e, err := acquire.NewEngine(engine, dataset, apiKey,
		acquire.WithTargetDir(targetDir),
		acquire.WithRetryOptions(retry),
		acquire.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := e.Configure(bbox); err != nil {
		return err
	}

	dir := outputDir
	if dir == "" {
		dir = targetDir
	}

	result, err := pipeline.Run(ctx, e, dir)
	if err != nil {
		return err
	}

	logger.Info("done",
		"job_id", result.JobID,
		"input", result.Input,
		"output", result.Output,
		"features", result.Stats.FeatureCount(),
		"elapsed", result.Stats.Elapsed)
	return nil
}

// runConvert converts local files
func runConvert(ctx context.Context, logger *slog.Logger, inputs []string, output, outputDir string, limit int) error {
	jobList, err := buildJobs(inputs, output, outputDir)
	if err != nil {
		return err
	}

	results, err := pipeline.ConvertAll(ctx, jobList, limit)
	if err != nil {
		return err
	}

	for _, r := range results {
		logger.Info("converted",
			"input", r.Input,
			"output", r.Output,
			"features", r.Stats.FeatureCount(),
			"elapsed", r.Stats.Elapsed)
	}
	return nil
}

// buildJobs pairs every input with its output path
func buildJobs(inputs []string, output, outputDir string) ([]pipeline.Job, error) {
	if len(inputs) == 0 {
		return nil, core.NewError(core.ErrInput, "no input files")
	}
	if output != "" && len(inputs) > 1 {
		return nil, core.NewError(core.ErrInput, "-output takes a single input").
			WithGuidance("Use -output-dir for several inputs")
	}
	if output != "" && outputDir != "" {
		return nil, core.NewError(core.ErrInput, "-output and -output-dir are mutually exclusive")
	}

	jobList := make([]pipeline.Job, 0, len(inputs))
	for _, in := range inputs {
		out := output
		if out == "" {
			dir := outputDir
			if dir == "" {
				dir = filepath.Dir(in)
			}
			out = pipeline.OutputPath(dir, in)
		}
		jobList = append(jobList, pipeline.Job{Input: in, Output: out})
	}
	return jobList, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// startMonitoring serves /metrics and the health endpoints, and wires the
// upstream client hooks into the metrics. The returned function stops it.
func startMonitoring(logger *slog.Logger) func() {
	healthChecker := monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
	healthChecker.WatchDirectories(targetDir)
	if outputDir != "" {
		healthChecker.WatchDirectories(outputDir)
	}

	osm.SetMonitoringHooks(&osm.MonitoringHooks{
		OnResponse: func(service, operation string, duration time.Duration, success bool) {
			monitoring.RecordExternalServiceRequest(service, operation, duration, success)
		},
		OnRateLimit: func(service string, waitTime time.Duration) {
			monitoring.RecordRateLimitWait(service, waitTime)
			monitoring.RecordRateLimitExceeded(service)
		},
		OnError: func(service, errorType string) {
			monitoring.RecordError(service, errorType)
		},
	})

	overpassMonitor := monitoring.NewConnectionMonitor(tracing.ServiceOverpass, healthChecker, osm.CheckOverpassHealth, 60*time.Second)
	overpassMonitor.Start()

	var m2mMonitor *monitoring.ConnectionMonitor
	if engine == acquire.EngineEarthExplorer {
		m2mMonitor = monitoring.NewConnectionMonitor(tracing.ServiceM2M, healthChecker, osm.CheckM2MHealth, 60*time.Second)
		m2mMonitor.Start()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	healthChecker.RegisterHandlers(mux)

	monitoringServer := &http.Server{
		Addr:              monitoringAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting monitoring server", "addr", monitoringAddr)
		if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	return func() {
		overpassMonitor.Stop()
		if m2mMonitor != nil {
			m2mMonitor.Stop()
		}
		healthChecker.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown monitoring server", "error", err)
		}
	}
}
