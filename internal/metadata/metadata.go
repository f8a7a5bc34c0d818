package metadata

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Keys written to a metadata record, in file order
const (
	KeyPRNumber       = "PR_NUMBER"
	KeyProjectID      = "PROJECT_ID"
	KeyWorkflowName   = "WORKFLOW_NAME"
	KeyJobName        = "JOB_NAME"
	KeyToolVersion    = "BUILD_TOOL_VERSION"
	KeyRequestedTasks = "REQUESTED_TASKS"
	KeyBuildFailure   = "BUILD_FAILURE"
	KeyTimestamp      = "TIMESTAMP"
	KeyBuildScanLink  = "BUILD_SCAN_LINK"
)

// FileExtension is the suffix of every metadata file
const FileExtension = ".txt"

// Record is one build's metadata entry
type Record struct {
	PRNumber       string
	ProjectID      string
	WorkflowName   string
	JobName        string
	ToolVersion    string
	RequestedTasks string
	BuildFailure   bool
	Timestamp      string

	// BuildScanLink is omitted from the output when empty
	BuildScanLink string
}

// Format renders the record as KEY=VALUE lines
func (r Record) Format() string {
	return fmt.Sprintf("%s=%s\n%s=%s\n%s=%s\n%s=%s\n%s=%s\n%s=%s\n%s=%s\n%s=%s\n%s",
		KeyPRNumber, r.PRNumber,
		KeyProjectID, r.ProjectID,
		KeyWorkflowName, r.WorkflowName,
		KeyJobName, r.JobName,
		KeyToolVersion, r.ToolVersion,
		KeyRequestedTasks, r.RequestedTasks,
		KeyBuildFailure, strconv.FormatBool(r.BuildFailure),
		KeyTimestamp, r.Timestamp,
		LinkEntry(r.BuildScanLink),
	)
}

// LinkEntry renders the build scan link line, or nothing for an empty link
func LinkEntry(link string) string {
	if link == "" {
		return ""
	}
	return KeyBuildScanLink + "=" + link + "\n"
}

// FilePath returns <dir>/<buildID>.txt
func FilePath(dir, buildID string) string {
	return filepath.Join(dir, buildID+FileExtension)
}
