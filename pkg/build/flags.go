// SPDX-License-Identifier: MIT
//
// Package build holds the application name, build timestamp, Git commit and
// semantic version. Release builds embed them with linker flags:
//
//	go build -ldflags "-X visualizer/pkg/build.buildName=visualizer -X visualizer/pkg/build.buildVersion=v0.1.0 ..."
//
// Development builds fall back to what the Go toolchain records in the binary.
package build

import (
	"fmt"
	"runtime/debug"
)

// DefaultName is used when no name was embedded at link time.
const DefaultName = "visualizer"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the build as "name version (commit, time)".
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", f.Name, f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "unknown",
		Description: "Real-time audio analysis for terminal music visualizers",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}
)

// readBuildInfo is swapped out in tests.
var readBuildInfo = debug.ReadBuildInfo

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. Returns an error if any required build flag is
// missing.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// InitializeOrDefault calls Initialize and, if the link-time flags are
// missing, fills the build information from the module and VCS data the
// toolchain stamped into the binary. It reports whether the link-time flags
// were used.
func InitializeOrDefault() bool {
	if Initialize() == nil {
		return true
	}

	buildFlags.Name = DefaultName
	info, ok := readBuildInfo()
	if !ok {
		return false
	}
	if v := info.Main.Version; v != "" {
		buildFlags.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			buildFlags.Commit = s.Value
			if len(s.Value) > 12 {
				buildFlags.Commit = s.Value[:12]
			}
		case "vcs.time":
			buildFlags.Time = s.Value
		}
	}
	return false
}

// GetBuildFlags returns the current build information. Initialize()
// must be called before this function to ensure the build information
// is valid. This function is safe to call after initialization.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
