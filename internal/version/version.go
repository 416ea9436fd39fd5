package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the released version of rhythm, overridden at build time:
//
//	go build -ldflags "-X github.com/hrygo/rhythm/internal/version.Version=0.3.0"
var Version = "0.1.0"

// DevVersion is reported in dev and demo mode.
var DevVersion = "0.1.0-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

// Info is the version block reported by /healthz.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
}

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

// GetInfo returns the version block for mode.
func GetInfo(mode string) Info {
	info := Info{Version: GetCurrentVersion(mode)}
	if GitCommit != "unknown" {
		info.Commit = shortCommit()
	}
	if BuildTime != "unknown" {
		info.BuildTime = BuildTime
	}
	return info
}

// IsValid reports whether version is a semantic version without the "v" prefix.
func IsValid(version string) bool {
	return !strings.HasPrefix(version, "v") && semver.IsValid("v"+version)
}

// IsVersionGreaterOrEqualThan returns true if version is greater than or equal to target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare("v"+version, "v"+target) > -1
}

// String returns the version with the short commit hash when known.
func String() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s-%s", Version, shortCommit())
}

func shortCommit() string {
	if len(GitCommit) > 8 {
		return GitCommit[:8]
	}
	return GitCommit
}
