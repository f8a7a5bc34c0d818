package policy

import (
	"log/slog"
	"testing"

	"github.com/daimoniac/scancapture/internal/config"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var strategies = []config.CaptureStrategy{
	config.StrategyAlways,
	config.StrategyOnFailure,
	config.StrategyOnDemand,
}

// TestCapturePolicyFormulaProperty checks every gate against the boolean formula
// over all strategies, failure states and toggle combinations.
func TestCapturePolicyFormulaProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("gates match the capture formula", prop.ForAll(
		func(idx int, isFailure, onDemand, unpublished, link bool) bool {
			strategy := strategies[idx]
			engine, err := NewEngine(slog.Default(), PolicyConfig{
				Strategy:           strategy,
				OnDemandEnabled:    onDemand,
				UnpublishedEnabled: unpublished,
				LinkEnabled:        link,
			})
			if err != nil {
				return false
			}

			required := strategy == config.StrategyAlways ||
				(isFailure && strategy == config.StrategyOnFailure) ||
				(onDemand && strategy == config.StrategyOnDemand)

			return engine.IsCaptureRequired(isFailure) == required &&
				engine.ShouldCaptureUnpublished(isFailure) == (unpublished && required) &&
				engine.ShouldCaptureLink(isFailure) == (link && required)
		},
		gen.IntRange(0, len(strategies)-1),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.Property("evaluation is pure", prop.ForAll(
		func(idx int, isFailure bool) bool {
			engine, err := NewEngine(slog.Default(), PolicyConfig{Strategy: strategies[idx], UnpublishedEnabled: true})
			if err != nil {
				return false
			}
			first := engine.Evaluate(isFailure)
			second := engine.Evaluate(isFailure)
			return first == second
		},
		gen.IntRange(0, len(strategies)-1),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
