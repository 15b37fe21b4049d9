package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/stdownloader/pkg/core"
	"github.com/NERVsystems/stdownloader/pkg/geo"
	"github.com/NERVsystems/stdownloader/pkg/osm"
	"github.com/NERVsystems/stdownloader/pkg/tracing"
)

// EarthExplorerEngine talks to the USGS machine-to-machine API used for
// Landsat, LCMAP and other satellite datasets.
type EarthExplorerEngine struct {
	*Downloader
	apiKey string
	bbox   *geo.BoundingBox
}

// NewEarthExplorerEngine creates an engine for dataset authenticated by apiKey
func NewEarthExplorerEngine(dataset, apiKey string, opts ...Option) *EarthExplorerEngine {
	return &EarthExplorerEngine{
		Downloader: newDownloader(dataset, EngineEarthExplorer, osm.M2MBaseURL+"/", opts...),
		apiKey:     apiKey,
	}
}

// Configure sets the bounding box
func (e *EarthExplorerEngine) Configure(bbox geo.BoundingBox) error {
	if err := validateBBox(bbox); err != nil {
		return err
	}
	e.bbox = &bbox
	return nil
}

// m2mResponse is the envelope of every M2M answer
type m2mResponse struct {
	RequestID    int64           `json:"requestId"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
}

// postJSON posts payload to endpoint and returns the decoded data member
func (e *EarthExplorerEngine) postJSON(ctx context.Context, endpoint string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewError(core.ErrInternalError, "failed to encode request").Wrap(err)
	}

	url := strings.TrimSuffix(e.baseURL, "/") + "/" + strings.TrimPrefix(endpoint, "/")

	resp, err := core.WithRetryFactory(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Auth-Token", e.apiKey)
		return req, nil
	}, e.client, e.retry)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewError(core.ErrNetworkError, "failed to read response").Wrap(err)
	}

	var out m2mResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, core.NewError(core.ErrParse, "invalid M2M response").Wrap(err)
	}
	if out.ErrorCode != "" {
		return nil, core.NewError(core.ErrServiceUnavailable,
			fmt.Sprintf("M2M %s: %s: %s", endpoint, out.ErrorCode, out.ErrorMessage))
	}

	return out.Data, nil
}

// DatasetInfo is the subset of M2M dataset metadata the engine uses
type DatasetInfo struct {
	DatasetID      string `json:"datasetId"`
	DatasetAlias   string `json:"datasetAlias"`
	CollectionName string `json:"collectionName"`
}

// LookupDataset asks M2M for the configured dataset's metadata
func (e *EarthExplorerEngine) LookupDataset(ctx context.Context) (*DatasetInfo, error) {
	data, err := e.postJSON(ctx, "dataset", map[string]string{"datasetName": e.dataset})
	if err != nil {
		return nil, err
	}

	var info DatasetInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, core.NewError(core.ErrParse, "invalid dataset metadata").Wrap(err)
	}
	return &info, nil
}

// Fetch is not available yet for M2M datasets: it needs the scene-search,
// download-options and download-request steps. It checks the configuration
// and the dataset, then reports NOT_IMPLEMENTED.
func (e *EarthExplorerEngine) Fetch(ctx context.Context) (path string, err error) {
	bboxStr := ""
	if e.bbox != nil {
		bboxStr = e.bbox.String()
	}

	ctx, span := tracing.StartSpan(ctx, "acquire.fetch",
		trace.WithAttributes(tracing.FetchAttributes(EngineEarthExplorer, e.dataset, bboxStr)...),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if e.bbox == nil {
		return "", core.NewError(core.ErrMissingBBox, "bounding box must be set before fetching")
	}
	if e.apiKey == "" {
		return "", core.NewError(core.ErrInput, "an M2M API key is required").
			WithGuidance("Pass -api-key or set it in the tool arguments")
	}

	info, err := e.LookupDataset(ctx)
	if err != nil {
		return "", err
	}
	e.logger.Info("dataset found", "dataset_id", info.DatasetID, "collection", info.CollectionName)

	// TODO: implement scene-search, download-options and download-request
	return "", core.NewError(core.ErrNotImplemented, "EarthExplorer downloads are not implemented").
		WithGuidance("Use the osm engine for OpenStreetMap extracts")
}
