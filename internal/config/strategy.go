package config

import (
	"strings"

	"github.com/daimoniac/scancapture/internal/errors"
)

// CaptureStrategy selects when diagnostic capture runs
type CaptureStrategy string

const (
	StrategyAlways    CaptureStrategy = "ALWAYS"
	StrategyOnFailure CaptureStrategy = "ON_FAILURE"
	StrategyOnDemand  CaptureStrategy = "ON_DEMAND"
)

// ParseCaptureStrategy parses a strategy name. Unknown names are a permanent error,
// the caller must not fall back to a default.
func ParseCaptureStrategy(value string) (CaptureStrategy, error) {
	switch s := CaptureStrategy(strings.ToUpper(strings.TrimSpace(value))); s {
	case StrategyAlways, StrategyOnFailure, StrategyOnDemand:
		return s, nil
	default:
		return "", errors.NewPermanentf("%w: unknown capture strategy %q (must be ALWAYS, ON_FAILURE or ON_DEMAND)",
			errors.ErrInvalidConfig, value)
	}
}

func (s CaptureStrategy) String() string {
	return string(s)
}
