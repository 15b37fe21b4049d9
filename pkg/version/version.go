// Package version exposes build information for logs, metrics and tools.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/NERVsystems/stdownloader/pkg/version.BuildVersion=..."
var (
	BuildVersion = "dev"
	BuildCommit  = ""
	BuildDate    = ""
)

// Info returns version details, filling commit and date from the embedded
// VCS settings when they were not set at link time.
func Info() map[string]string {
	info := map[string]string{
		"version":    BuildVersion,
		"go_version": runtime.Version(),
		"commit":     BuildCommit,
		"build_date": BuildDate,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info["commit"] == "" {
					info["commit"] = s.Value
				}
			case "vcs.time":
				if info["build_date"] == "" {
					info["build_date"] = s.Value
				}
			}
		}
	}

	return info
}

// String returns a one-line version banner.
func String() string {
	info := Info()
	s := fmt.Sprintf("stdownloader %s (%s)", info["version"], info["go_version"])
	if info["commit"] != "" {
		s += " commit " + info["commit"]
	}
	return s
}
