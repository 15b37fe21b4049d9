// Package server runs the MCP tool server over stdin/stdout.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/stdownloader/pkg/tools"
	"github.com/NERVsystems/stdownloader/pkg/version"
)

// ServerName is the name of the MCP server
const ServerName = "stdownloader"

// parentCheckInterval is how often the server checks that the process that
// started it is still alive.
const parentCheckInterval = 2 * time.Second

// Option configures a Server
type Option func(*Server)

// WithStdio replaces os.Stdin and os.Stdout
func WithStdio(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server encapsulates the MCP server with the conversion tools. A Server
// runs once.
type Server struct {
	srv    *mcpserver.MCPServer
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	doneCh  chan struct{}
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		logger: slog.Default(),
		in:     os.Stdin,
		out:    os.Stdout,
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("initializing MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	s.srv = mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	tools.NewRegistry(s.logger).RegisterTools(s.srv)

	return s, nil
}

// Run serves until stdin is closed or Shutdown is called.
func (s *Server) Run() error {
	return s.RunWithContext(context.Background())
}

// RunWithContext serves until stdin is closed, ctx is cancelled or Shutdown
// is called.
func (s *Server) RunWithContext(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	if s.stopped {
		s.mu.Unlock()
		close(s.doneCh)
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		close(s.doneCh)
	}()

	go s.monitorParent(ctx)

	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, s.in, s.out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		s.logger.Error("server error", "error", err)
		return err
	}

	s.logger.Info("server stopped")
	return nil
}

// Shutdown stops the server. It does not block.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

// WaitForShutdown blocks until a started server has returned.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.srv
}

// monitorParent shuts the server down when the client that spawned it goes
// away without closing stdin.
func (s *Server) monitorParent(ctx context.Context) {
	ppid := os.Getppid()
	if ppid <= 1 {
		return
	}

	ticker := time.NewTicker(parentCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !isProcessRunning(ppid) {
				s.logger.Info("parent process exited, shutting down", "ppid", ppid)
				s.Shutdown()
				return
			}
		}
	}
}

// isProcessRunning reports whether pid exists, using signal 0.
func isProcessRunning(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
