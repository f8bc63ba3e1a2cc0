// Package version carries build metadata injected at link time:
//
//	go build -ldflags "-X git.home.luguber.info/inful/distbuilder/internal/version.Version=v1.0.0"
package version

import "fmt"

// Version is the release tag.
var Version = "unknown"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats all build metadata on one line.
func String() string {
	return fmt.Sprintf("distbuilder %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
