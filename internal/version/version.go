// Package version holds the release version of the trove binary.
package version

// Version is set at build time with -ldflags.
var Version = "0.1.0-dev"
