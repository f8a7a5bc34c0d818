package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/daimoniac/scancapture/internal/metadata"
	"gopkg.in/yaml.v3"
)

// SummaryCmd prints the metadata records of a job
type SummaryCmd struct {
	Dir    string `help:"Build scan metadata directory" env:"BUILD_SCAN_METADATA_DIR" required:""`
	Format string `help:"Output format" enum:"text,yaml" default:"text"`
}

type buildSummary struct {
	BuildID        string `yaml:"buildId"`
	ProjectID      string `yaml:"projectId"`
	WorkflowName   string `yaml:"workflowName"`
	JobName        string `yaml:"jobName"`
	ToolVersion    string `yaml:"buildToolVersion"`
	RequestedTasks string `yaml:"requestedTasks"`
	BuildFailure   bool   `yaml:"buildFailure"`
	Timestamp      string `yaml:"timestamp"`
	BuildScanLink  string `yaml:"buildScanLink,omitempty"`
}

type jobSummary struct {
	PRNumber int            `yaml:"prNumber,omitempty"`
	Builds   []buildSummary `yaml:"builds"`
}

func (s *SummaryCmd) Run(g *Global) error {
	job, err := metadata.LoadJob(g.Logger, s.Dir)
	if err != nil {
		return err
	}
	return writeSummary(os.Stdout, job, s.Format)
}

func writeSummary(w io.Writer, job *metadata.Job, format string) error {
	summary := jobSummary{PRNumber: job.PRNumber}
	for _, b := range job.Builds {
		summary.Builds = append(summary.Builds, buildSummary{
			BuildID:        b.BuildID,
			ProjectID:      b.ProjectID,
			WorkflowName:   b.WorkflowName,
			JobName:        b.JobName,
			ToolVersion:    b.ToolVersion,
			RequestedTasks: b.RequestedTasks,
			BuildFailure:   b.BuildFailure,
			Timestamp:      b.Timestamp,
			BuildScanLink:  b.BuildScanLink,
		})
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tREQUESTED TASKS\tOUTCOME\tBUILD SCAN")
	for _, b := range summary.Builds {
		outcome := "SUCCESS"
		if b.BuildFailure {
			outcome = "FAILED"
		}
		link := b.BuildScanLink
		if link == "" {
			link = "(unpublished " + b.BuildID + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.JobName, b.RequestedTasks, outcome, link)
	}
	return tw.Flush()
}
