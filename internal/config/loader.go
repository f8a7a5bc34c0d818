package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment keys recognised by Load
const (
	EnvCaptureStrategy           = "INPUT_BUILD_SCAN_CAPTURE_STRATEGY"
	EnvCaptureUnpublishedEnabled = "INPUT_BUILD_SCAN_CAPTURE_UNPUBLISHED_ENABLED"
	EnvCaptureLinkEnabled        = "INPUT_BUILD_SCAN_CAPTURE_LINK_ENABLED"
	EnvCaptureCurrentEnabled     = "CAPTURE_BUILD_SCAN"
	EnvCaptureCondition          = "BUILD_SCAN_CAPTURE_CONDITION"
	EnvWorkflowName              = "INPUT_WORKFLOW_NAME"
	EnvJobName                   = "INPUT_JOB_NAME"
	EnvPRNumber                  = "PR_NUMBER"
	EnvBuildID                   = "BUILD_ID"
	EnvScanDataDir               = "BUILD_SCAN_DATA_DIR"
	EnvScanDataCopyDir           = "BUILD_SCAN_DATA_COPY_DIR"
	EnvMetadataDir               = "BUILD_SCAN_METADATA_DIR"
	EnvMetadataCopyDir           = "BUILD_SCAN_METADATA_COPY_DIR"
	EnvLinkRecordFile            = "BUILD_SCAN_LINK_FILE"
	EnvGitHubOutput              = "GITHUB_OUTPUT"
	EnvRepublication             = "IS_BUILD_SCAN_REPUBLICATION"
	EnvScanDumpPattern           = "BUILD_SCAN_DUMP_PATTERN"
	EnvConfigFile                = "SCANCAPTURE_CONFIG"
	EnvLogLevel                  = "LOG_LEVEL"
	EnvMetricsTextfile           = "METRICS_TEXTFILE"
)

// Documented defaults
const (
	DefaultWorkflowName    = "unknown workflow name"
	DefaultJobName         = "unknown job name"
	DefaultPRNumber        = "0"
	DefaultBuildID         = "0"
	DefaultConfigFile      = "scancapture.yml"
	DefaultGitHubOutputKey = "build-scan-url"

	// DefaultScanDumpPattern matches <root>/build-scan-data/<agent-version>/previous/<build-id>/scan.scan,
	// the layout the build-scan agent uses for scans it could not publish.
	DefaultScanDumpPattern = `^.*/build-scan-data/.*/previous/.*/scan\.scan$`
)

// Load loads configuration from environment variables and scancapture.yml defaults
func Load() (*Config, error) {
	configPath := getEnv(EnvConfigFile, DefaultConfigFile)

	var defaults FileDefaults
	if fileCfg, err := ParseFile(configPath); err == nil {
		defaults = fileCfg.Defaults
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	// A set but empty strategy is malformed, not absent
	strategyValue, set := os.LookupEnv(EnvCaptureStrategy)
	if !set {
		strategyValue = defaults.Strategy
	}
	strategy := StrategyAlways
	if set || strategyValue != "" {
		parsed, err := ParseCaptureStrategy(strategyValue)
		if err != nil {
			return nil, err
		}
		strategy = parsed
	}

	cfg := &Config{
		ConfigPath: configPath,
		Capture: CaptureConfig{
			Strategy:           strategy,
			UnpublishedEnabled: getEnvBool(EnvCaptureUnpublishedEnabled, true),
			LinkEnabled:        getEnvBool(EnvCaptureLinkEnabled, true),
			OnDemandEnabled:    getEnvBool(EnvCaptureCurrentEnabled, false),
			Condition:          getEnv(EnvCaptureCondition, defaults.CaptureCondition),
		},
		Paths: PathConfig{
			ScanDataDir:     getEnv(EnvScanDataDir, ""),
			ScanDataCopyDir: getEnv(EnvScanDataCopyDir, ""),
			MetadataDir:     getEnv(EnvMetadataDir, ""),
			MetadataCopyDir: getEnv(EnvMetadataCopyDir, ""),
			LinkRecordFile:  getEnv(EnvLinkRecordFile, ""),
			GitHubOutput:    getEnv(EnvGitHubOutput, ""),
			GitHubOutputKey: firstNonEmpty(defaults.GitHubOutputKey, DefaultGitHubOutputKey),
		},
		Identity: IdentityConfig{
			WorkflowName:    getEnv(EnvWorkflowName, DefaultWorkflowName),
			JobName:         getEnv(EnvJobName, DefaultJobName),
			PRNumber:        getEnv(EnvPRNumber, DefaultPRNumber),
			ExternalBuildID: getEnv(EnvBuildID, DefaultBuildID),
		},
		ScanDumpPattern: getEnv(EnvScanDumpPattern, firstNonEmpty(defaults.ScanDumpPattern, DefaultScanDumpPattern)),
		Republication:   getEnvBool(EnvRepublication, false),
		Observability: ObservabilityConfig{
			LogLevel:        getEnv(EnvLogLevel, "info"),
			MetricsTextfile: getEnv(EnvMetricsTextfile, ""),
		},
	}

	return cfg, nil
}

// ParseFile reads and parses a scancapture.yml defaults file
func ParseFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFS("read config file", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewPermanentf("%w: failed to parse %s: %w", errors.ErrInvalidConfig, path, err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c.Paths); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			missing := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				missing = append(missing, pathEnvKey(fe.Field()))
			}
			return errors.NewPermanentf("%w: required paths not set: %s", errors.ErrInvalidConfig, strings.Join(missing, ", "))
		}
		return errors.NewPermanentf("%w: %w", errors.ErrInvalidConfig, err)
	}

	if c.ScanDumpPattern == "" {
		return errors.NewPermanentf("%w: scan dump pattern is empty", errors.ErrInvalidConfig)
	}

	if _, err := regexp.Compile(c.ScanDumpPattern); err != nil {
		return errors.NewPermanentf("%w: invalid scan dump pattern %q: %w", errors.ErrInvalidConfig, c.ScanDumpPattern, err)
	}

	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{strategy=%s unpublished=%t link=%t onDemand=%t republication=%t scanDataDir=%s metadataDir=%s}",
		c.Capture.Strategy, c.Capture.UnpublishedEnabled, c.Capture.LinkEnabled, c.Capture.OnDemandEnabled,
		c.Republication, c.Paths.ScanDataDir, c.Paths.MetadataDir)
}

func pathEnvKey(field string) string {
	switch field {
	case "ScanDataDir":
		return EnvScanDataDir
	case "ScanDataCopyDir":
		return EnvScanDataCopyDir
	case "MetadataDir":
		return EnvMetadataDir
	case "MetadataCopyDir":
		return EnvMetadataCopyDir
	default:
		return field
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(strings.TrimSpace(value))
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
