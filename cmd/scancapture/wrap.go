package main

import (
	"context"

	"github.com/daimoniac/scancapture/internal/buildstate"
	"github.com/daimoniac/scancapture/internal/capture"
	"github.com/daimoniac/scancapture/internal/filemanager"
	"github.com/daimoniac/scancapture/internal/observability"
	"github.com/daimoniac/scancapture/internal/output"
	"github.com/daimoniac/scancapture/internal/policy"
	"github.com/daimoniac/scancapture/internal/wrapper"
)

// WrapCmd runs a build with capture enabled
type WrapCmd struct {
	ProjectID   string   `help:"Project identifier recorded in metadata (defaults to the working directory name)"`
	ToolVersion string   `help:"Build tool version recorded in metadata"`
	Command     []string `arg:"" passthrough:"" help:"Build command and its arguments"`
}

func (w *WrapCmd) Run(g *Global) error {
	logger := g.Logger

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger.Debug("configuration loaded", "config", cfg.String())

	engine, err := policy.NewEngine(logger, policy.FromConfig(cfg))
	if err != nil {
		return err
	}

	files := filemanager.New()
	metrics := observability.NewMetrics()

	listener, err := capture.NewListener(logger, cfg, engine, buildstate.New(), files,
		capture.WithSinks(output.FromConfig(cfg, files)...),
		capture.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	runner, err := wrapper.New(logger, wrapper.Options{
		Command:     w.Command,
		ProjectID:   w.ProjectID,
		ToolVersion: w.ToolVersion,
	})
	if err != nil {
		return err
	}

	listener.Configure(runner, runner)

	code, runErr := runner.Run(context.Background())

	if err := metrics.WriteTextfile(cfg.Observability.MetricsTextfile); err != nil {
		logger.Warn("failed to write metrics textfile",
			"path", cfg.Observability.MetricsTextfile,
			"error", err)
	}

	if runErr != nil {
		return runErr
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}
