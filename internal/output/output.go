package output

import (
	"fmt"

	"github.com/daimoniac/scancapture/internal/config"
	"github.com/daimoniac/scancapture/internal/filemanager"
)

// LinkSink receives the published build scan link
type LinkSink interface {
	Name() string
	Emit(buildID, link string) error
}

// RecordFile appends "<buildId>=<link>" lines to a file
type RecordFile struct {
	files filemanager.FileManager
	path  string
}

// NewRecordFile creates a link-record sink writing to path
func NewRecordFile(files filemanager.FileManager, path string) *RecordFile {
	return &RecordFile{files: files, path: path}
}

func (r *RecordFile) Name() string { return "record-file" }

func (r *RecordFile) Emit(buildID, link string) error {
	return r.files.WriteContent(r.path, fmt.Sprintf("%s=%s\n", buildID, link))
}

// GitHubOutput appends "<key>=<link>" to the file named by $GITHUB_OUTPUT.
// Emit does nothing when no output file is configured.
type GitHubOutput struct {
	files filemanager.FileManager
	path  string
	key   string
}

// NewGitHubOutput creates a GitHub step output sink
func NewGitHubOutput(files filemanager.FileManager, path, key string) *GitHubOutput {
	if key == "" {
		key = config.DefaultGitHubOutputKey
	}
	return &GitHubOutput{files: files, path: path, key: key}
}

func (g *GitHubOutput) Name() string { return "github-output" }

func (g *GitHubOutput) Emit(_, link string) error {
	if g.path == "" {
		return nil
	}
	return g.files.WriteContent(g.path, fmt.Sprintf("%s=%s\n", g.key, link))
}

// FromConfig builds the sinks enabled by the configuration
func FromConfig(cfg *config.Config, files filemanager.FileManager) []LinkSink {
	var sinks []LinkSink
	if cfg.Paths.LinkRecordFile != "" {
		sinks = append(sinks, NewRecordFile(files, cfg.Paths.LinkRecordFile))
	}
	if cfg.Paths.GitHubOutput != "" {
		sinks = append(sinks, NewGitHubOutput(files, cfg.Paths.GitHubOutput, cfg.Paths.GitHubOutputKey))
	}
	return sinks
}
