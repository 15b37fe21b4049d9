// Package osm provides the shared HTTP plumbing for the upstream data services
// the fetchers talk to: rate limiting, User-Agent handling and health probes.
package osm

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/stdownloader/pkg/tracing"
)

const (
	// OverpassBaseURL is the root of the Overpass API
	OverpassBaseURL = "https://overpass-api.de/api"

	// M2MBaseURL is the root of the USGS machine-to-machine API
	M2MBaseURL = "https://m2m.cr.usgs.gov/api/1.0/json"

	// DefaultUserAgent is the default User-Agent string
	DefaultUserAgent = "stdownloader/0.1.0"
)

var (
	// Global HTTP client with connection pooling. Extracts can be large, so
	// there is no overall timeout; callers bound requests with their context.
	httpClient *http.Client

	// Rate limiters keyed by service name, and the hosts mapped to each service
	limiterMu    sync.RWMutex
	limiters     map[string]*rate.Limiter
	serviceHosts map[string]string

	// User agent string
	userAgent     string
	userAgentLock sync.RWMutex
)

func init() {
	httpClient = &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 3 * time.Minute,
		},
	}

	// Overpass asks for at most one request per second from anonymous clients
	limiters = map[string]*rate.Limiter{
		tracing.ServiceOverpass: rate.NewLimiter(rate.Limit(1), 1),
		tracing.ServiceM2M:      rate.NewLimiter(rate.Limit(2), 2),
	}
	serviceHosts = map[string]string{
		hostFromURL(OverpassBaseURL): tracing.ServiceOverpass,
		hostFromURL(M2MBaseURL):      tracing.ServiceM2M,
	}

	SetUserAgent(DefaultUserAgent)
}

// UpdateOverpassRateLimits updates the Overpass rate limiter
func UpdateOverpassRateLimits(rps float64, burst int) {
	setLimiter(tracing.ServiceOverpass, rate.NewLimiter(rate.Limit(rps), burst))
}

// UpdateM2MRateLimits updates the USGS M2M rate limiter
func UpdateM2MRateLimits(rps float64, burst int) {
	setLimiter(tracing.ServiceM2M, rate.NewLimiter(rate.Limit(rps), burst))
}

func setLimiter(service string, l *rate.Limiter) {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	limiters[service] = l
}

// RegisterServiceHost maps an additional host to a known service so its
// requests share that service's rate limiter and metrics labels.
// Mirrors and test servers use this.
func RegisterServiceHost(host, service string) {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	serviceHosts[host] = service
}

// UnregisterServiceHost removes a mapping added with RegisterServiceHost
func UnregisterServiceHost(host string) {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	delete(serviceHosts, host)
}

// SetUserAgent sets the User-Agent string
func SetUserAgent(ua string) {
	userAgentLock.Lock()
	defer userAgentLock.Unlock()
	userAgent = ua
}

// GetUserAgent returns the current User-Agent string
func GetUserAgent() string {
	userAgentLock.RLock()
	defer userAgentLock.RUnlock()
	return userAgent
}

// hostFromURL extracts the host from a URL string
func hostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Host
}

// serviceFor returns the service name and limiter for a request host.
// Unknown hosts get no limiter.
func serviceFor(host string) (string, *rate.Limiter) {
	limiterMu.RLock()
	defer limiterMu.RUnlock()

	service, ok := serviceHosts[host]
	if !ok {
		return "unknown", nil
	}
	return service, limiters[service]
}

// waitForRateLimit waits for the limiter of the service the request targets
func waitForRateLimit(ctx context.Context, req *http.Request) error {
	service, limiter := serviceFor(req.URL.Host)
	if limiter == nil {
		return nil
	}

	if limiter.Allow() {
		return nil
	}

	startWait := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(
			attribute.String(tracing.AttrRateLimitService, service),
		),
	)

	err := limiter.Wait(ctx)

	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, service),
		attribute.Int64(tracing.AttrRateLimitWaitMs, time.Since(startWait).Milliseconds()),
	)

	return err
}

// DoRequest performs an HTTP request with rate limiting
func DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", GetUserAgent())

	if err := waitForRateLimit(ctx, req); err != nil {
		return nil, err
	}

	return httpClient.Do(req)
}

// NewRequestWithUserAgent creates a new HTTP request with the configured User-Agent header
func NewRequestWithUserAgent(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", GetUserAgent())
	return req, nil
}

// CheckOverpassHealth checks that the Overpass API answers its status endpoint
func CheckOverpassHealth(ctx context.Context) error {
	return checkHealth(ctx, "overpass", OverpassBaseURL+"/status")
}

// CheckM2MHealth checks that the USGS M2M API is reachable
func CheckM2MHealth(ctx context.Context) error {
	return checkHealth(ctx, "m2m", M2MBaseURL+"/")
}

func checkHealth(ctx context.Context, name, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s health check request: %w", name, err)
	}

	resp, err := DoRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s health check returned status %d", name, resp.StatusCode)
	}

	return nil
}
