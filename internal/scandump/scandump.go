// Package scandump recognises unpublished build-scan dumps left on disk by the
// publishing agent.
//
// The agent keeps scans it could not upload under
//
//	<scanDataDir>/build-scan-data/<agentVersion>/previous/<buildId>/scan.scan
//
// That layout belongs to the agent, so the pattern used to recognise it is a
// configuration value rather than a constant.
package scandump

import (
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/daimoniac/scancapture/internal/filemanager"
)

var segmentsPattern = regexp.MustCompile(`^.*/build-scan-data/([^/]+)/previous/([^/]+)/[^/]+$`)

// Dump describes one discovered scan-dump file
type Dump struct {
	Path         string
	BuildID      string
	AgentVersion string
}

// Matcher recognises scan-dump files by their slash-normalised path
type Matcher struct {
	pattern *regexp.Regexp
}

// NewMatcher compiles the scan-dump path pattern
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, errors.NewPermanentf("%w: empty scan dump pattern", errors.ErrInvalidConfig)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.NewPermanentf("%w: scan dump pattern %q: %w", errors.ErrInvalidConfig, pattern, err)
	}

	return &Matcher{pattern: re}, nil
}

// MatchPath reports whether the path names a scan dump
func (m *Matcher) MatchPath(p string) bool {
	return m.pattern.MatchString(Normalize(p))
}

// Match adapts the matcher to filemanager.FileManager.FindFirst; only regular files match
func (m *Matcher) Match(p string, d fs.DirEntry) bool {
	return filemanager.IsRegularFile(d) && m.MatchPath(p)
}

// Normalize converts Windows separators to forward slashes
func Normalize(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// Parse extracts the build id (the scan file's parent directory) and the agent
// version segment from a scan-dump path.
func Parse(p string) (Dump, error) {
	normalized := Normalize(p)

	dump := Dump{
		Path:    p,
		BuildID: path.Base(path.Dir(normalized)),
	}

	if m := segmentsPattern.FindStringSubmatch(normalized); m != nil {
		dump.AgentVersion = m[1]
		dump.BuildID = m[2]
	}

	if dump.BuildID == "" || dump.BuildID == "." || dump.BuildID == "/" {
		return Dump{}, errors.NewPermanentf("%w: no build id in scan dump path %q", errors.ErrInvalidInput, p)
	}

	return dump, nil
}
