package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/daimoniac/scancapture/internal/config"
	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/daimoniac/scancapture/internal/observability"
	"github.com/joho/godotenv"
)

// Global is shared by every command
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command line
type CLI struct {
	LogLevel string `help:"Log level (debug, info, warn, error)" env:"LOG_LEVEL" default:"info"`

	Wrap    WrapCmd    `cmd:"" help:"Run a build command and capture its build scan"`
	Summary SummaryCmd `cmd:"" help:"Print the build scan metadata recorded for this job"`
	Policy  PolicyCmd  `cmd:"" help:"Print the effective capture decisions"`
}

// exitCodeError carries the wrapped build's exit code back to main
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("build exited with code %d", e.code)
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("scancapture"),
		kong.Description("Captures build scan metadata, unpublished build scans and published build scan links."),
		kong.UsageOnError(),
	)

	logger := observability.NewLogger(cli.LogLevel, os.Stderr)

	err := kctx.Run(&Global{Logger: logger})

	var buildExit exitCodeError
	switch {
	case err == nil, stderrors.As(err, &buildExit):
	case errors.IsPermanent(err):
		logger.Error("configuration error", "command", kctx.Command(), "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	default:
		logger.Error("command failed", "command", kctx.Command(), "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	os.Exit(exitCode(err))
}

// Exit codes other than the wrapped build's own
const (
	exitFailure       = 1
	exitConfiguration = 2
)

// exitCode maps a command error to the process exit code.
// The wrapped build's exit code passes through unchanged.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var buildExit exitCodeError
	if stderrors.As(err, &buildExit) {
		return buildExit.code
	}

	if errors.IsPermanent(err) {
		return exitConfiguration
	}
	return exitFailure
}

// loadConfig resolves the configuration; path validation is skipped for read-only commands
func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return cfg, nil
}
