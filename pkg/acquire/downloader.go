// Package acquire fetches raw extracts for a bounding box from upstream data
// services and stores them locally.
package acquire

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/geo"
	"github.com/NERVsystems/stdownloader/pkg/monitoring"
	"github.com/NERVsystems/stdownloader/pkg/osm"
)

// DefaultTargetDir is where fetched files go unless configured otherwise
const DefaultTargetDir = "./downloads"

// Engine fetches one dataset for a configured bounding box
type Engine interface {
	// Configure sets the extent to fetch
	Configure(bbox geo.BoundingBox) error

	// Fetch retrieves the extract and returns the local file path
	Fetch(ctx context.Context) (string, error)

	// Dataset returns the dataset identifier
	Dataset() string
}

// Option configures an engine
type Option func(*Downloader)

// WithTargetDir sets the download directory. It is created on first download.
func WithTargetDir(dir string) Option {
	return func(d *Downloader) {
		d.targetDir = dir
	}
}

// WithHTTPClient replaces the rate-limited, monitored default client
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		d.client = client
	}
}

// WithRetryOptions sets the retry policy for downloads
func WithRetryOptions(opts core.RetryOptions) Option {
	return func(d *Downloader) {
		d.retry = opts
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithBaseURL points the engine at a different service root, e.g. a mirror
func WithBaseURL(url string) Option {
	return func(d *Downloader) {
		d.baseURL = url
	}
}

// Downloader holds what every engine shares: the dataset name, the target
// directory and the HTTP plumbing.
type Downloader struct {
	dataset   string
	targetDir string
	baseURL   string
	client    *http.Client
	retry     core.RetryOptions
	logger    *slog.Logger
}

func newDownloader(dataset, engine, baseURL string, opts ...Option) *Downloader {
	d := &Downloader{
		dataset:   dataset,
		targetDir: DefaultTargetDir,
		baseURL:   baseURL,
		client:    osm.NewMonitoredClient(engine),
		retry:     core.DefaultRetryOptions,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "acquire", "engine", engine, "dataset", dataset)
	return d
}

// Dataset returns the dataset identifier
func (d *Downloader) Dataset() string {
	return d.dataset
}

// TargetDirectory returns the download directory
func (d *Downloader) TargetDirectory() string {
	return d.targetDir
}

// SetTargetDirectory sets the download directory and creates it
func (d *Downloader) SetTargetDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return core.NewError(core.ErrOutput, "cannot create target directory").
			WithPath(path).
			Wrap(err)
	}
	d.targetDir = path
	return nil
}

// download streams url into <target>/<filename>. The file appears only
// once the body has been received completely.
func (d *Downloader) download(ctx context.Context, engine, url, filename string) (string, error) {
	if err := os.MkdirAll(d.targetDir, 0o755); err != nil {
		return "", core.NewError(core.ErrOutput, "cannot create target directory").
			WithPath(d.targetDir).
			Wrap(err)
	}

	outPath := filepath.Join(d.targetDir, filename)

	d.logger.Debug("downloading", "url", url, "path", outPath)

	resp, err := core.WithRetryFactory(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, d.client, d.retry)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	pf, err := renameio.NewPendingFile(outPath, renameio.WithPermissions(0o644))
	if err != nil {
		return "", core.NewError(core.ErrOutput, "cannot create download file").
			WithPath(outPath).
			Wrap(err)
	}
	defer pf.Cleanup()

	n, err := io.Copy(pf, resp.Body)
	if err != nil {
		return "", core.NewError(core.ErrNetworkError, "download interrupted").
			WithPath(outPath).
			Wrap(err)
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return "", core.NewError(core.ErrOutput, "cannot store download").
			WithPath(outPath).
			Wrap(err)
	}

	monitoring.RecordDownload(engine, n)
	d.logger.Info("download completed", "path", outPath, "bytes", n)

	return outPath, nil
}

func validateBBox(bbox geo.BoundingBox) error {
	if err := bbox.Validate(); err != nil {
		return core.NewError(core.ErrInvalidBBox, "invalid bounding box").
			Wrap(err).
			WithGuidance("Use decimal degrees in south,west,north,east order")
	}
	return nil
}

// NewEngine creates the engine registered under name: "osm" or "earthexplorer"
func NewEngine(name, dataset, apiKey string, opts ...Option) (Engine, error) {
	switch name {
	case EngineOSM, "overpass":
		return NewOverpassEngine(dataset, opts...), nil
	case EngineEarthExplorer, "m2m":
		return NewEarthExplorerEngine(dataset, apiKey, opts...), nil
	default:
		return nil, core.NewError(core.ErrInput, fmt.Sprintf("unknown engine %q", name)).
			WithGuidance("Use one of: osm, earthexplorer")
	}
}
