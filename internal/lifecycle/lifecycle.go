// Package lifecycle defines the events a build host raises during a build.
//
// The capture listener subscribes to three of them: build finished, build scan
// published and shutdown. Any host able to raise these events can drive capture;
// the wrapper package provides one that runs the build as a child process.
package lifecycle

import "net/url"

// Host delivers build lifecycle events to subscribers
type Host interface {
	// OnBuildFinished registers a callback invoked once the build completes
	OnBuildFinished(func(BuildResult))

	// OnBuildScanPublished registers a callback invoked when a build scan has been published
	OnBuildScanPublished(func(PublishedScan))

	// OnShutdown registers a callback invoked once, after all other events
	OnShutdown(func())
}

// Session exposes what the host knows about the running build
type Session interface {
	ProjectID() string
	RequestedGoals() []string

	// ToolVersion looks up the build tool version; it may fail on hosts that do not expose it
	ToolVersion() (string, error)
}

// BuildResult is the outcome of a finished build
type BuildResult struct {
	Failures []error
}

// Failed reports whether the build recorded any failure
func (r BuildResult) Failed() bool {
	return len(r.Failures) > 0
}

// PublishedScan describes a build scan uploaded to the scan service
type PublishedScan interface {
	BuildScanID() string
	BuildScanURI() *url.URL
}

// Scan is a plain PublishedScan value
type Scan struct {
	ID  string
	URI *url.URL
}

func (s Scan) BuildScanID() string    { return s.ID }
func (s Scan) BuildScanURI() *url.URL { return s.URI }
