// Package config exposes the build information stamped into the beacon binary.
package config

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/good-yellow-bee/beacon/pkg/config.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form printed by `beacon version`.
func (b BuildInfo) String() string {
	return fmt.Sprintf("beacon %s (%s) built at %s with %s for %s",
		b.Version, b.Commit, b.BuildTime, b.GoVersion, b.Platform)
}

// UserAgent identifies beacon on outbound HTTP requests.
func UserAgent() string {
	return "beacon/" + Version
}
