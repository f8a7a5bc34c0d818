// Package buildstate holds the facts of a single build run. Every field is safe
// for concurrent use: lifecycle callbacks write from the host's threads while the
// shutdown path reads.
package buildstate

import (
	"fmt"
	"sync/atomic"
)

// State is the mutable, thread-safe holder of build-run facts
type State struct {
	buildID        atomic.Pointer[string]
	buildTimestamp atomic.Pointer[string]
	toolVersion    atomic.Pointer[string]
	projectID      atomic.Pointer[string]
	requestedGoals atomic.Pointer[string]
	buildScanLink  atomic.Pointer[string]
	isFailure      atomic.Bool
}

// New creates an empty build state
func New() *State {
	return &State{}
}

func load(p *atomic.Pointer[string]) string {
	if v := p.Load(); v != nil {
		return *v
	}
	return ""
}

func (s *State) BuildID() string { return load(&s.buildID) }

// SetBuildID replaces the build id; discovery of an unpublished scan reassigns it
func (s *State) SetBuildID(id string) { s.buildID.Store(&id) }

func (s *State) BuildTimestamp() string { return load(&s.buildTimestamp) }

func (s *State) SetBuildTimestamp(ts string) { s.buildTimestamp.Store(&ts) }

func (s *State) ToolVersion() string { return load(&s.toolVersion) }

func (s *State) SetToolVersion(v string) { s.toolVersion.Store(&v) }

func (s *State) ProjectID() string { return load(&s.projectID) }

func (s *State) SetProjectID(id string) { s.projectID.Store(&id) }

func (s *State) RequestedGoals() string { return load(&s.requestedGoals) }

func (s *State) SetRequestedGoals(goals string) { s.requestedGoals.Store(&goals) }

// IsFailure reports whether the build has been marked as failed
func (s *State) IsFailure() bool { return s.isFailure.Load() }

// MarkFailure flips the failure flag to true. There is no way back.
func (s *State) MarkFailure() { s.isFailure.Store(true) }

// BuildScanLink returns the published link, or "" when none was captured
func (s *State) BuildScanLink() string { return load(&s.buildScanLink) }

// SetBuildScanLink stores the link if none is set yet and reports whether it did
func (s *State) SetBuildScanLink(link string) bool {
	return s.buildScanLink.CompareAndSwap(nil, &link)
}

func (s *State) String() string {
	return fmt.Sprintf("BuildState{buildId=%s, buildTimestamp=%s, toolVersion=%s, projectId=%s, requestedGoals=%s, isFailure=%t, buildScanLink=%s}",
		s.BuildID(), s.BuildTimestamp(), s.ToolVersion(), s.ProjectID(), s.RequestedGoals(), s.IsFailure(), s.BuildScanLink())
}
