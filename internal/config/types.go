package config

// Config represents the complete capture configuration, resolved once at startup
type Config struct {
	ConfigPath      string
	Capture         CaptureConfig
	Paths           PathConfig
	Identity        IdentityConfig
	ScanDumpPattern string
	Republication   bool
	Observability   ObservabilityConfig
}

// CaptureConfig holds the capture policy inputs
type CaptureConfig struct {
	Strategy           CaptureStrategy
	UnpublishedEnabled bool
	LinkEnabled        bool
	OnDemandEnabled    bool
	Condition          string // Optional CEL expression ANDed onto the strategy gate
}

// PathConfig holds the filesystem locations used during capture
type PathConfig struct {
	ScanDataDir     string `validate:"required"`
	ScanDataCopyDir string `validate:"required"`
	MetadataDir     string `validate:"required"`
	MetadataCopyDir string `validate:"required"`
	LinkRecordFile  string // Optional <buildId>=<link> record file
	GitHubOutput    string // Optional structured output file
	GitHubOutputKey string `validate:"required"`
}

// IdentityConfig holds free-text fields copied into metadata records
type IdentityConfig struct {
	WorkflowName    string
	JobName         string
	PRNumber        string
	ExternalBuildID string
}

// ObservabilityConfig configures logging and metrics
type ObservabilityConfig struct {
	LogLevel        string
	MetricsTextfile string
}

// FileConfig represents the optional scancapture.yml defaults file
type FileConfig struct {
	Defaults FileDefaults `yaml:"defaults"`
}

// FileDefaults contains values used when the matching environment variable is unset
type FileDefaults struct {
	ScanDumpPattern  string `yaml:"x-scan-dump-pattern,omitempty"`
	CaptureCondition string `yaml:"x-capture-condition,omitempty"`
	GitHubOutputKey  string `yaml:"x-github-output-key,omitempty"`
	Strategy         string `yaml:"x-capture-strategy,omitempty"`
}
