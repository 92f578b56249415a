// Package version holds build-time identifying information, set via
// -ldflags at release build time. Unset fields default to "dev"/"unknown"
// for local builds.
package version

import "runtime"

var (
	// GitRelease is the tagged release version, e.g. "v1.2.0".
	GitRelease = "dev"

	// GitCommit is the short commit hash the binary was built from.
	GitCommit = "unknown"

	// GitCommitDate is the commit timestamp, RFC3339.
	GitCommitDate = "unknown"
)

// GoInfo is the Go toolchain version the binary was built with.
var GoInfo = runtime.Version()
