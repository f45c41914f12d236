// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/rickgao/quote-producer/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/quote-producer/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	         ./cmd/producer
package version

import "fmt"

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a formatted version string.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
