// Package version holds build information set at link time:
//
//	go build -ldflags "-X contractkit/internal/version.Version=v1.2.3 -X contractkit/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("contractkit %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
