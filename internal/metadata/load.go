package metadata

import (
	"bufio"
	"cmp"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/daimoniac/scancapture/internal/errors"
)

const maxLineSize = 1024 * 1024

// Build is a metadata record read back from disk
type Build struct {
	BuildID string
	Record
}

// Job groups every build recorded for one workflow job
type Job struct {
	PRNumber int
	Builds   []Build
}

// LoadJob reads every <buildId>.txt record in dir.
// Builds are sorted by job name, then by timestamp.
// Records missing the workflow name, job name or requested tasks are logged and kept.
func LoadJob(logger *slog.Logger, dir string) (*Job, error) {
	if logger == nil {
		logger = slog.Default()
	}

	files, err := filepath.Glob(filepath.Join(dir, "*"+FileExtension))
	if err != nil {
		return nil, errors.NewPermanentf("%w: metadata glob in %s: %w", errors.ErrInvalidInput, dir, err)
	}

	job := &Job{}
	if len(files) == 0 {
		logger.Info("no build scan metadata to process", "dir", dir)
		return job, nil
	}

	for _, file := range files {
		build, prNumber, err := loadBuild(file)
		if err != nil {
			return nil, err
		}

		if build.WorkflowName == "" || build.JobName == "" || build.RequestedTasks == "" {
			logger.Info("unexpected build scan metadata content",
				"build_id", build.BuildID,
				"pr_number", prNumber,
				"workflow_name", build.WorkflowName,
				"job_name", build.JobName,
				"requested_tasks", build.RequestedTasks)
		}

		job.PRNumber = prNumber
		job.Builds = append(job.Builds, build)
	}

	slices.SortStableFunc(job.Builds, func(a, b Build) int {
		if c := strings.Compare(a.JobName, b.JobName); c != 0 {
			return c
		}
		return compareTimestamps(a.Timestamp, b.Timestamp)
	})

	return job, nil
}

func loadBuild(file string) (Build, int, error) {
	f, err := os.Open(file)
	if err != nil {
		return Build{}, 0, errors.WrapFS("open metadata", file, err)
	}
	defer f.Close()

	values, err := Parse(f)
	if err != nil {
		return Build{}, 0, errors.NewTransientf("parse metadata %s: %w", file, err)
	}

	failure, _ := strconv.ParseBool(values[KeyBuildFailure])
	prNumber, _ := strconv.Atoi(values[KeyPRNumber])

	build := Build{
		BuildID: strings.TrimSuffix(filepath.Base(file), FileExtension),
		Record: Record{
			PRNumber:       values[KeyPRNumber],
			ProjectID:      values[KeyProjectID],
			WorkflowName:   values[KeyWorkflowName],
			JobName:        values[KeyJobName],
			ToolVersion:    values[KeyToolVersion],
			RequestedTasks: values[KeyRequestedTasks],
			BuildFailure:   failure,
			Timestamp:      values[KeyTimestamp],
			BuildScanLink:  values[KeyBuildScanLink],
		},
	}

	return build, prNumber, nil
}

// Parse reads KEY=VALUE lines as written by Record.Format.
// Values are taken verbatim up to the end of the line; a later key overrides an earlier one.
// Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimLeft(line, " \t"), "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = value
	}

	return values, scanner.Err()
}

// compareTimestamps orders epoch-millisecond timestamps numerically, falling back to text order
func compareTimestamps(a, b string) int {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(ai, bi)
	}
	return strings.Compare(a, b)
}
