// Package version holds the build information of tasktrack and tasktrackd.
package version

import "fmt"

// Set with -ldflags "-X github.com/Barrelito/sam-a-sub000/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String formats the build information as "version (commit c, built d)".
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
