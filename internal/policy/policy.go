package policy

import (
	"fmt"
	"log/slog"

	"github.com/daimoniac/scancapture/internal/config"
	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/google/cel-go/cel"
)

// CapturePolicy decides whether capture runs for the current failure state.
// Callers pass the failure flag they observe at the decision point; nothing is cached.
type CapturePolicy interface {
	// IsCaptureRequired reports whether the strategy (and optional condition) asks for capture
	IsCaptureRequired(isFailure bool) bool

	// ShouldCaptureUnpublished gates discovery and relocation of unpublished scans
	ShouldCaptureUnpublished(isFailure bool) bool

	// ShouldCaptureLink gates recording of the published build scan link
	ShouldCaptureLink(isFailure bool) bool
}

// PolicyConfig defines the capture policy inputs
type PolicyConfig struct {
	Strategy           config.CaptureStrategy
	UnpublishedEnabled bool
	LinkEnabled        bool
	OnDemandEnabled    bool

	// Condition is an optional CEL expression that must also evaluate to true for capture to run.
	// Available variables:
	//   - isFailure: whether the build has failed so far
	//   - strategy: ALWAYS, ON_FAILURE or ON_DEMAND
	//   - workflowName, jobName, prNumber: identity fields of the run
	Condition string

	WorkflowName string
	JobName      string
	PRNumber     string
}

// FromConfig extracts the policy inputs from the resolved configuration
func FromConfig(cfg *config.Config) PolicyConfig {
	return PolicyConfig{
		Strategy:           cfg.Capture.Strategy,
		UnpublishedEnabled: cfg.Capture.UnpublishedEnabled,
		LinkEnabled:        cfg.Capture.LinkEnabled,
		OnDemandEnabled:    cfg.Capture.OnDemandEnabled,
		Condition:          cfg.Capture.Condition,
		WorkflowName:       cfg.Identity.WorkflowName,
		JobName:            cfg.Identity.JobName,
		PRNumber:           cfg.Identity.PRNumber,
	}
}

// Decision is a snapshot of every gate for one failure state
type Decision struct {
	IsFailure          bool
	CaptureRequired    bool
	CaptureUnpublished bool
	CaptureLink        bool
	Reason             string
}

// Engine implements CapturePolicy
type Engine struct {
	logger     *slog.Logger
	config     PolicyConfig
	celProgram cel.Program
}

// NewEngine creates a capture policy engine, compiling the optional CEL condition
func NewEngine(logger *slog.Logger, cfg PolicyConfig) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Strategy {
	case config.StrategyAlways, config.StrategyOnFailure, config.StrategyOnDemand:
	default:
		return nil, errors.NewPermanentf("%w: unsupported capture strategy %q", errors.ErrInvalidConfig, cfg.Strategy)
	}

	engine := &Engine{
		logger: logger,
		config: cfg,
	}

	if cfg.Condition == "" {
		return engine, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("isFailure", cel.BoolType),
		cel.Variable("strategy", cel.StringType),
		cel.Variable("workflowName", cel.StringType),
		cel.Variable("jobName", cel.StringType),
		cel.Variable("prNumber", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(cfg.Condition)
	if issues != nil && issues.Err() != nil {
		return nil, errors.NewPermanentf("%w: failed to compile capture condition: %w", errors.ErrInvalidConfig, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, errors.NewPermanentf("%w: capture condition must return a boolean, got %v", errors.ErrInvalidConfig, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	engine.celProgram = program

	return engine, nil
}

// IsCaptureRequired evaluates
// strategy==ALWAYS || (isFailure && strategy==ON_FAILURE) || (onDemand && strategy==ON_DEMAND),
// ANDed with the capture condition when one is configured.
func (e *Engine) IsCaptureRequired(isFailure bool) bool {
	required := e.strategyAllows(isFailure)
	if !required || e.celProgram == nil {
		return required
	}

	return e.evalCondition(isFailure)
}

// ShouldCaptureUnpublished reports unpublishedToggle && IsCaptureRequired(isFailure)
func (e *Engine) ShouldCaptureUnpublished(isFailure bool) bool {
	return e.config.UnpublishedEnabled && e.IsCaptureRequired(isFailure)
}

// ShouldCaptureLink reports linkToggle && IsCaptureRequired(isFailure)
func (e *Engine) ShouldCaptureLink(isFailure bool) bool {
	return e.config.LinkEnabled && e.IsCaptureRequired(isFailure)
}

// Evaluate returns every gate for the given failure state
func (e *Engine) Evaluate(isFailure bool) Decision {
	d := Decision{
		IsFailure:          isFailure,
		CaptureRequired:    e.IsCaptureRequired(isFailure),
		CaptureUnpublished: e.ShouldCaptureUnpublished(isFailure),
		CaptureLink:        e.ShouldCaptureLink(isFailure),
	}

	switch {
	case d.CaptureRequired:
		d.Reason = fmt.Sprintf("capture required by strategy %s", e.config.Strategy)
	case e.celProgram != nil && e.strategyAllows(isFailure):
		d.Reason = fmt.Sprintf("capture condition %q not satisfied", e.config.Condition)
	case e.config.Strategy == config.StrategyOnFailure:
		d.Reason = "strategy ON_FAILURE and build has not failed"
	case e.config.Strategy == config.StrategyOnDemand:
		d.Reason = "strategy ON_DEMAND and capture was not requested"
	}

	return d
}

func (e *Engine) strategyAllows(isFailure bool) bool {
	return e.config.Strategy == config.StrategyAlways ||
		(isFailure && e.config.Strategy == config.StrategyOnFailure) ||
		(e.config.OnDemandEnabled && e.config.Strategy == config.StrategyOnDemand)
}

// evalCondition denies capture when the condition cannot be evaluated
func (e *Engine) evalCondition(isFailure bool) bool {
	out, _, err := e.celProgram.Eval(map[string]interface{}{
		"isFailure":    isFailure,
		"strategy":     e.config.Strategy.String(),
		"workflowName": e.config.WorkflowName,
		"jobName":      e.config.JobName,
		"prNumber":     e.config.PRNumber,
	})
	if err != nil {
		e.logger.Warn("failed to evaluate capture condition",
			"expression", e.config.Condition,
			"error", err)
		return false
	}

	passed, ok := out.Value().(bool)
	if !ok {
		e.logger.Warn("capture condition did not return a boolean",
			"expression", e.config.Condition,
			"value", out.Value())
		return false
	}

	if !passed {
		e.logger.Debug("capture condition not satisfied",
			"expression", e.config.Condition,
			"is_failure", isFailure)
	}

	return passed
}
