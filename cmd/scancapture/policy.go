package main

import (
	"fmt"
	"io"
	"os"

	"github.com/daimoniac/scancapture/internal/config"
	"github.com/daimoniac/scancapture/internal/policy"
	"gopkg.in/yaml.v3"
)

// PolicyCmd prints what capture would do for the current environment
type PolicyCmd struct {
	Failure bool `help:"Evaluate as if the build had failed"`
}

type decisionView struct {
	Strategy           string `yaml:"strategy"`
	Condition          string `yaml:"condition,omitempty"`
	Republication      bool   `yaml:"republication"`
	IsFailure          bool   `yaml:"isFailure"`
	CaptureRequired    bool   `yaml:"captureRequired"`
	CaptureUnpublished bool   `yaml:"captureUnpublished"`
	CaptureLink        bool   `yaml:"captureLink"`
	Reason             string `yaml:"reason,omitempty"`
}

func (p *PolicyCmd) Run(g *Global) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	engine, err := policy.NewEngine(g.Logger, policy.FromConfig(cfg))
	if err != nil {
		return err
	}

	return writeDecision(os.Stdout, cfg, engine.Evaluate(p.Failure))
}

func writeDecision(w io.Writer, cfg *config.Config, d policy.Decision) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(decisionView{
		Strategy:           cfg.Capture.Strategy.String(),
		Condition:          cfg.Capture.Condition,
		Republication:      cfg.Republication,
		IsFailure:          d.IsFailure,
		CaptureRequired:    d.CaptureRequired,
		CaptureUnpublished: d.CaptureUnpublished,
		CaptureLink:        d.CaptureLink,
		Reason:             d.Reason,
	}); err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	return enc.Close()
}
