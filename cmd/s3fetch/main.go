// s3fetch downloads objects from private S3-compatible buckets.
package main

import (
	"os"

	"github.com/rescale/s3fetch/internal/cli"
	"github.com/rescale/s3fetch/internal/version"
)

// Version information, overridden with -ldflags at release build time.
var (
	Version   = "v1.2.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
