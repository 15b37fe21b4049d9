package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/NERVsystems/stdownloader/pkg/version"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Upstream states reported by a ConnectionMonitor
const (
	ConnConnected = "connected"
	ConnSlow      = "slow"
	ConnError     = "error"
)

// ConversionReport describes one finished compile call
type ConversionReport struct {
	Input       string
	Output      string
	Features    int
	DroppedRefs int
	Elapsed     time.Duration
	Err         error
}

// ConversionStatus is the last conversion as served by /health
type ConversionStatus struct {
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	Features    int       `json:"features"`
	DroppedRefs int       `json:"dropped_refs"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// ConversionTotals accumulate over the life of the process
type ConversionTotals struct {
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	Features    int64 `json:"features"`
	DroppedRefs int64 `json:"dropped_refs"`
}

type conversionLog struct {
	mu     sync.Mutex
	last   *ConversionStatus
	totals ConversionTotals
}

var conversions conversionLog

func (l *conversionLog) record(r ConversionReport) {
	status := &ConversionStatus{
		Input:       r.Input,
		Output:      r.Output,
		Features:    r.Features,
		DroppedRefs: r.DroppedRefs,
		ElapsedMs:   r.Elapsed.Milliseconds(),
		FinishedAt:  time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Err != nil {
		status.Error = r.Err.Error()
		l.totals.Failed++
	} else {
		l.totals.Succeeded++
		l.totals.Features += int64(r.Features)
		l.totals.DroppedRefs += int64(r.DroppedRefs)
	}
	l.last = status
}

func (l *conversionLog) snapshot() (*ConversionStatus, ConversionTotals) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.last == nil {
		return nil, l.totals
	}
	last := *l.last
	return &last, l.totals
}

func (l *conversionLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = nil
	l.totals = ConversionTotals{}
}

// ReportConversion records a finished compile call in the metrics and in
// the state served by the health endpoint.
func ReportConversion(r ConversionReport) {
	RecordCompilation(r.Elapsed, r.Err == nil)
	conversions.record(r)
}

// HealthChecker serves the state of the upstream data services, the
// conversions run so far and the directories extracts are written to.
type HealthChecker struct {
	serviceName string
	version     string
	startTime   time.Time

	mu          sync.RWMutex
	connections map[string]*ConnStatus
	dirs        []string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHealthChecker creates a health checker and starts collecting runtime
// gauges in the background.
func NewHealthChecker(serviceName, version string) *HealthChecker {
	ctx, cancel := context.WithCancel(context.Background())

	hc := &HealthChecker{
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		connections: make(map[string]*ConnStatus),
		ctx:         ctx,
		cancel:      cancel,
	}

	go hc.collectSystemMetrics()

	return hc
}

// WatchDirectories makes readiness depend on dirs being writable
func (h *HealthChecker) WatchDirectories(dirs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirs = append(h.dirs, dirs...)
}

// UpdateConnection stores the latest probe result for an upstream service
func (h *HealthChecker) UpdateConnection(name, status string, latencyMs int64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	errStr := ""
	if err != nil {
		errStr = err.Error()
	}

	h.connections[name] = &ConnStatus{
		Status:    status,
		Latency:   latencyMs,
		LastError: errStr,
	}
}

// GetHealth returns the current health.
//
// Every upstream in error makes the service unhealthy. A slow or failing
// upstream, or a failed last conversion, makes it degraded.
func (h *HealthChecker) GetHealth() ServiceHealth {
	h.mu.RLock()
	connections := make(map[string]ConnStatus, len(h.connections))
	failing, slow := 0, 0
	for name, conn := range h.connections {
		connections[name] = *conn
		switch conn.Status {
		case ConnError:
			failing++
		case ConnSlow:
			slow++
		}
	}
	h.mu.RUnlock()

	last, totals := conversions.snapshot()

	status := StatusHealthy
	switch {
	case failing > 0 && failing == len(connections):
		status = StatusUnhealthy
	case failing > 0, slow > 0:
		status = StatusDegraded
	case last != nil && last.Error != "":
		status = StatusDegraded
	}

	return ServiceHealth{
		Service:        h.serviceName,
		Version:        h.version,
		Status:         status,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		StartTime:      h.startTime,
		Connections:    connections,
		Conversions:    totals,
		LastConversion: last,
		Metrics: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"cpu_count":  runtime.NumCPU(),
		},
	}
}

// Directories reports, per watched directory, "writable" or the reason it
// is not.
func (h *HealthChecker) Directories() map[string]string {
	h.mu.RLock()
	dirs := append([]string(nil), h.dirs...)
	h.mu.RUnlock()

	out := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		if err := dirWritable(dir); err != nil {
			out[dir] = err.Error()
		} else {
			out[dir] = "writable"
		}
	}
	return out
}

// dirWritable checks that a file can be created in dir, or in its nearest
// existing ancestor when dir is still to be created. It leaves nothing
// behind.
func dirWritable(dir string) error {
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return err
		}
		dir = parent
	}

	f, err := os.CreateTemp(dir, ".stdownloader-ready-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// HealthHandler serves GetHealth; unhealthy is a 503
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()

		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// ReadinessHandler reports ready when the service is not unhealthy and
// every watched directory is writable.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		dirs := h.Directories()

		ready := health.Status != StatusUnhealthy
		for _, state := range dirs {
			if state != "writable" {
				ready = false
			}
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"ready":       ready,
			"status":      health.Status,
			"directories": dirs,
		})
	}
}

// LivenessHandler always answers 200
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(h.startTime).String(),
		})
	}
}

// RegisterHandlers mounts /health, /ready and /live on mux
func (h *HealthChecker) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthHandler())
	mux.HandleFunc("/ready", h.ReadinessHandler())
	mux.HandleFunc("/live", h.LivenessHandler())
}

func (h *HealthChecker) collectSystemMetrics() {
	info := version.Info()
	SystemInfo.WithLabelValues(info["version"], info["go_version"], info["commit"], info["build_date"]).Set(1)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		GoRoutines.Set(float64(runtime.NumGoroutine()))
		MemoryUsage.Set(float64(m.Alloc))

		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown stops background collection
func (h *HealthChecker) Shutdown() {
	h.cancel()
}

// ConnectionMonitor probes one upstream service on an interval and reports
// the result to a HealthChecker and to the upstream request metrics.
type ConnectionMonitor struct {
	name      string
	hc        *HealthChecker
	probe     func(context.Context) error
	interval  time.Duration
	slowAfter time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionMonitor creates a monitor for the service name. Probes that
// succeed but take longer than a quarter of the interval count as slow.
func NewConnectionMonitor(name string, hc *HealthChecker, probe func(context.Context) error, interval time.Duration) *ConnectionMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &ConnectionMonitor{
		name:      name,
		hc:        hc,
		probe:     probe,
		interval:  interval,
		slowAfter: interval / 4,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start probes once immediately, then on every interval
func (cm *ConnectionMonitor) Start() {
	go func() {
		ticker := time.NewTicker(cm.interval)
		defer ticker.Stop()

		for {
			cm.check()

			select {
			case <-cm.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops probing
func (cm *ConnectionMonitor) Stop() {
	cm.cancel()
}

func (cm *ConnectionMonitor) check() {
	ctx, cancel := context.WithTimeout(cm.ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	err := cm.probe(ctx)
	elapsed := time.Since(start)

	RecordExternalServiceRequest(cm.name, "health_check", elapsed, err == nil)

	status := ConnConnected
	switch {
	case err != nil:
		status = ConnError
		RecordError(cm.name, "health_check")
	case elapsed > cm.slowAfter:
		status = ConnSlow
	}

	cm.hc.UpdateConnection(cm.name, status, elapsed.Milliseconds(), err)
}
