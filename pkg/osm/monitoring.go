package osm

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// MonitoringHooks defines hooks for monitoring HTTP requests
type MonitoringHooks struct {
	// OnRequest is called before making an HTTP request
	OnRequest func(service, operation string)

	// OnResponse is called after receiving an HTTP response
	OnResponse func(service, operation string, duration time.Duration, success bool)

	// OnRateLimit is called when a request waited noticeably for its limiter
	OnRateLimit func(service string, waitTime time.Duration)

	// OnError is called when an error occurs
	OnError func(service, errorType string)
}

var (
	globalHooks *MonitoringHooks
	hooksMutex  sync.RWMutex
)

// SetMonitoringHooks sets global monitoring hooks
func SetMonitoringHooks(hooks *MonitoringHooks) {
	hooksMutex.Lock()
	defer hooksMutex.Unlock()
	globalHooks = hooks
}

func getMonitoringHooks() *MonitoringHooks {
	hooksMutex.RLock()
	defer hooksMutex.RUnlock()
	return globalHooks
}

// MonitoredDoRequest performs an HTTP request with rate limiting and monitoring
func MonitoredDoRequest(ctx context.Context, req *http.Request, operation string) (*http.Response, error) {
	req.Header.Set("User-Agent", GetUserAgent())
	return monitoredDo(ctx, httpClient.Transport, req, operation)
}

func monitoredDo(ctx context.Context, rt http.RoundTripper, req *http.Request, operation string) (*http.Response, error) {
	service := getServiceFromRequest(req)

	hooks := getMonitoringHooks()
	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(service, operation)
	}

	start := time.Now()

	if err := waitForRateLimit(ctx, req); err != nil {
		if hooks != nil && hooks.OnError != nil {
			hooks.OnError(service, "rate_limit_wait_error")
		}
		return nil, err
	}

	// Only significant waits are reported
	waitTime := time.Since(start)
	if waitTime > 100*time.Millisecond && hooks != nil && hooks.OnRateLimit != nil {
		hooks.OnRateLimit(service, waitTime)
	}

	requestStart := time.Now()
	resp, err := rt.RoundTrip(req)
	duration := time.Since(requestStart)

	success := err == nil && resp != nil && resp.StatusCode < 400

	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(service, operation, duration, success)
	}

	if err != nil && hooks != nil && hooks.OnError != nil {
		hooks.OnError(service, "request_error")
	}

	return resp, err
}

// getServiceFromRequest determines which service is being called based on the request URL
func getServiceFromRequest(req *http.Request) string {
	service, _ := serviceFor(req.URL.Host)
	return service
}

// Transport is an http.RoundTripper that applies the User-Agent, the
// per-service rate limiter and the monitoring hooks to every request.
type Transport struct {
	// Operation labels the requests in metrics, e.g. "map" or "login"
	Operation string

	// Base is the underlying transport; the pooled global transport when nil
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = httpClient.Transport
	}

	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", GetUserAgent())

	return monitoredDo(r.Context(), base, r, t.Operation)
}

// NewMonitoredClient returns an HTTP client whose requests go through Transport
func NewMonitoredClient(operation string) *http.Client {
	return &http.Client{Transport: &Transport{Operation: operation}}
}
