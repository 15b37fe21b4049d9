package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func quietServer(t *testing.T, in io.Reader) *Server {
	t.Helper()
	s, err := NewServer(
		WithStdio(in, io.Discard),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

func handle(t *testing.T, s *Server, message string) map[string]any {
	t.Helper()
	resp := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(message))
	if resp == nil {
		t.Fatal("no response")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if _, isErr := out["error"]; isErr {
		t.Fatalf("JSON-RPC error: %s", data)
	}
	return out
}

func TestToolsList(t *testing.T) {
	s := quietServer(t, strings.NewReader(""))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)

	result := resp["result"].(map[string]any)
	list := result["tools"].([]any)

	got := make(map[string]bool)
	for _, item := range list {
		got[item.(map[string]any)["name"].(string)] = true
	}
	for _, name := range []string{"get_version", "osm_to_geojson", "fetch_extract", "query_features"} {
		if !got[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestToolsCall(t *testing.T) {
	s := quietServer(t, strings.NewReader(""))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_version","arguments":{}}}`)

	result := resp["result"].(map[string]any)
	if isErr, _ := result["isError"].(bool); isErr {
		t.Fatalf("get_version failed: %v", result)
	}
	content := result["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, `"version"`) {
		t.Errorf("unexpected version payload %s", text)
	}
}

func TestRunStopsAtEOF(t *testing.T) {
	s := quietServer(t, strings.NewReader(""))

	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return at end of input")
	}
}

func TestRunWithContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := quietServer(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunWithContext(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunWithContext() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithContext did not return after cancel")
	}
}

func TestShutdown(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := quietServer(t, r)

	go s.Run()
	// Shutdown may land before or after Run starts listening
	s.Shutdown()

	waited := make(chan struct{})
	go func() {
		s.WaitForShutdown()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	if err := s.Run(); err == nil {
		t.Error("a second Run should fail")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(999999) {
		t.Error("invalid PID should not be running")
	}
}

func TestIsProcessRunningAfterExit(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping subprocess test in short mode")
	}

	cmd := exec.Command("sleep", "0.1")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start subprocess: %v", err)
	}
	pid := cmd.Process.Pid

	if !isProcessRunning(pid) {
		t.Errorf("child process %d should be running", pid)
	}
	cmd.Wait()
	if isProcessRunning(pid) {
		t.Errorf("child process %d should not be running after exit", pid)
	}
}
