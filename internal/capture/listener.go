package capture

import (
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/daimoniac/scancapture/internal/buildstate"
	"github.com/daimoniac/scancapture/internal/config"
	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/daimoniac/scancapture/internal/filemanager"
	"github.com/daimoniac/scancapture/internal/lifecycle"
	"github.com/daimoniac/scancapture/internal/metadata"
	"github.com/daimoniac/scancapture/internal/observability"
	"github.com/daimoniac/scancapture/internal/output"
	"github.com/daimoniac/scancapture/internal/policy"
	"github.com/daimoniac/scancapture/internal/scandump"
	"github.com/google/uuid"
)

// UnknownToolVersion is recorded when the host cannot report its version
const UnknownToolVersion = "unknown"

// Listener captures build scan metadata, unpublished scans and published links.
// It is driven by lifecycle events and can be called directly.
type Listener struct {
	logger  *slog.Logger
	config  *config.Config
	policy  policy.CapturePolicy
	state   *buildstate.State
	files   filemanager.FileManager
	matcher *scandump.Matcher
	sinks   []output.LinkSink
	metrics *observability.Metrics

	now   func() time.Time
	newID func() string
}

// Option customises a Listener
type Option func(*Listener)

// WithSinks sets the destinations for captured links
func WithSinks(sinks ...output.LinkSink) Option {
	return func(l *Listener) { l.sinks = sinks }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithClock overrides the clock used for build timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// WithIDGenerator overrides the run-start build id generator
func WithIDGenerator(newID func() string) Option {
	return func(l *Listener) { l.newID = newID }
}

// NewListener creates a capture listener.
// The scan-dump pattern must compile; everything else is checked by config.Validate.
func NewListener(logger *slog.Logger, cfg *config.Config, pol policy.CapturePolicy, state *buildstate.State, files filemanager.FileManager, opts ...Option) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	matcher, err := scandump.NewMatcher(cfg.ScanDumpPattern)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		logger:  logger,
		config:  cfg,
		policy:  pol,
		state:   state,
		files:   files,
		matcher: matcher,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = observability.NewMetrics()
	}

	return l, nil
}

// State returns the build state shared by every trigger
func (l *Listener) State() *buildstate.State {
	return l.state
}

// Configure records the run-start identity of the build and subscribes to the host's events
func (l *Listener) Configure(host lifecycle.Host, session lifecycle.Session) {
	l.state.SetBuildID(l.newID())
	l.state.SetBuildTimestamp(strconv.FormatInt(l.now().UnixMilli(), 10))
	l.state.SetToolVersion(l.toolVersion(session))
	l.state.SetProjectID(session.ProjectID())
	l.state.SetRequestedGoals(strings.Join(session.RequestedGoals(), " "))

	l.logger.Debug("build scan capture configured", "state", l.state.String())

	host.OnBuildFinished(l.BuildFinished)
	host.OnBuildScanPublished(l.CaptureBuildScanLink)
	host.OnShutdown(l.CaptureBuildScanMetadata)
}

func (l *Listener) toolVersion(session lifecycle.Session) string {
	version, err := session.ToolVersion()
	if err != nil || version == "" {
		l.logger.Info("could not determine build tool version", "error", err)
		return UnknownToolVersion
	}
	return version
}

// BuildFinished marks the build as failed when the result carries failures
func (l *Listener) BuildFinished(result lifecycle.BuildResult) {
	if result.Failed() {
		l.state.MarkFailure()
		l.logger.Debug("build failed", "failures", len(result.Failures))
	}
}

// CaptureBuildScanLink stores and emits the link of a published build scan.
// The scan is not inspected when link capture is disabled.
func (l *Listener) CaptureBuildScanLink(scan lifecycle.PublishedScan) {
	if !l.policy.ShouldCaptureLink(l.state.IsFailure()) {
		l.logger.Debug("build scan link capture disabled")
		l.metrics.Capture(observability.KindLink, observability.OutcomeSkipped)
		return
	}

	uri := scan.BuildScanURI()
	if uri == nil {
		l.logger.Warn("published build scan has no link")
		l.metrics.Capture(observability.KindLink, observability.OutcomeFailed)
		return
	}

	link := uri.String()
	if !l.state.SetBuildScanLink(link) {
		l.logger.Debug("build scan link already captured", "link", l.state.BuildScanLink(), "ignored", link)
		l.metrics.Capture(observability.KindLink, observability.OutcomeSkipped)
		return
	}

	l.logger.Info("build scan link captured", "build_id", l.state.BuildID(), "link", link)
	l.metrics.Capture(observability.KindLink, observability.OutcomeCaptured)

	for _, sink := range l.sinks {
		if err := sink.Emit(l.state.BuildID(), link); err != nil {
			l.logger.Info("failed to emit build scan link", "sink", sink.Name(), "error", err)
			l.metrics.FilesystemError("emit_" + strings.ReplaceAll(sink.Name(), "-", "_"))
		}
	}
}

// CaptureBuildScanMetadata runs at shutdown.
// In republication mode it only appends the stored link to the existing record.
// Otherwise it writes the full record and captures any unpublished scan.
func (l *Listener) CaptureBuildScanMetadata() {
	start := l.now()
	defer func() {
		l.metrics.CaptureDuration.Observe(l.now().Sub(start).Seconds())
	}()

	if l.config.Republication {
		l.appendLink()
		return
	}

	l.saveMetadata()
	l.captureUnpublished()
}

func (l *Listener) appendLink() {
	link := l.state.BuildScanLink()
	if link == "" {
		l.logger.Debug("no build scan link to republish")
		l.metrics.Capture(observability.KindRepublication, observability.OutcomeSkipped)
		return
	}

	path := metadata.FilePath(l.config.Paths.MetadataDir, l.config.Identity.ExternalBuildID)
	if err := l.files.WriteContent(path, metadata.LinkEntry(link)); err != nil {
		l.fail(observability.KindRepublication, "write_content", "failed to append build scan link", err)
		return
	}

	l.logger.Info("build scan link appended", "path", path, "link", link)
	l.metrics.Capture(observability.KindRepublication, observability.OutcomeCaptured)
}

// Record builds the metadata record for the current build state
func (l *Listener) Record() metadata.Record {
	return metadata.Record{
		PRNumber:       l.config.Identity.PRNumber,
		ProjectID:      l.state.ProjectID(),
		WorkflowName:   l.config.Identity.WorkflowName,
		JobName:        l.config.Identity.JobName,
		ToolVersion:    l.state.ToolVersion(),
		RequestedTasks: l.state.RequestedGoals(),
		BuildFailure:   l.state.IsFailure(),
		Timestamp:      l.state.BuildTimestamp(),
		BuildScanLink:  l.state.BuildScanLink(),
	}
}

func (l *Listener) saveMetadata() {
	path := metadata.FilePath(l.config.Paths.MetadataDir, l.state.BuildID())
	if err := l.files.WriteContent(path, l.Record().Format()); err != nil {
		l.fail(observability.KindMetadata, "write_content", "failed to save build scan metadata", err)
		return
	}

	l.logger.Debug("build scan metadata saved", "path", path)
	l.metrics.Capture(observability.KindMetadata, observability.OutcomeCaptured)
}

func (l *Listener) captureUnpublished() {
	if !l.policy.ShouldCaptureUnpublished(l.state.IsFailure()) {
		l.logger.Debug("unpublished build scan capture disabled")
		l.metrics.Capture(observability.KindUnpublished, observability.OutcomeSkipped)
		return
	}

	scanDataDir := l.config.Paths.ScanDataDir
	found, ok, err := l.files.FindFirst(scanDataDir, l.matcher.Match)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			l.logger.Debug("build scan data directory does not exist", "dir", scanDataDir)
			l.metrics.Capture(observability.KindUnpublished, observability.OutcomeSkipped)
			return
		}
		l.fail(observability.KindUnpublished, "find", "failed to search for unpublished build scan", err)
		return
	}
	if !ok {
		l.logger.Debug("no unpublished build scan found", "dir", scanDataDir)
		l.metrics.Capture(observability.KindUnpublished, observability.OutcomeSkipped)
		return
	}

	dump, err := scandump.Parse(found)
	if err != nil {
		l.logger.Warn("unrecognised build scan dump", "path", found, "error", err)
		l.metrics.Capture(observability.KindUnpublished, observability.OutcomeFailed)
		return
	}
	l.metrics.UnpublishedScansFound.Inc()

	l.logger.Info("unpublished build scan found",
		"path", found,
		"build_id", dump.BuildID,
		"agent_version", dump.AgentVersion)

	runStartID := l.state.BuildID()
	l.state.SetBuildID(dump.BuildID)

	if err := l.files.CopyDirectory(scanDataDir, l.config.Paths.ScanDataCopyDir); err != nil {
		l.fail(observability.KindUnpublished, "copy_directory", "failed to copy build scan data", err)
		return
	}

	metadataSrc := metadata.FilePath(l.config.Paths.MetadataDir, runStartID)
	metadataDst := metadata.FilePath(l.config.Paths.MetadataCopyDir, dump.BuildID)
	if err := l.files.CopyFile(metadataSrc, metadataDst); err != nil {
		l.fail(observability.KindUnpublished, "copy_file", "failed to copy build scan metadata", err)
		return
	}

	if err := l.files.DeleteDirectory(scanDataDir); err != nil {
		l.fail(observability.KindUnpublished, "delete_directory", "failed to delete build scan data", err)
		return
	}

	l.logger.Info("unpublished build scan captured",
		"build_id", dump.BuildID,
		"scan_data_copy_dir", l.config.Paths.ScanDataCopyDir,
		"metadata", metadataDst)
	l.metrics.Capture(observability.KindUnpublished, observability.OutcomeCaptured)
}

// fail logs and counts an error; capture errors never reach the host
func (l *Listener) fail(kind, op, msg string, err error) {
	l.logger.Warn(msg, "op", op, "transient", errors.IsTransient(err), "error", err)
	l.metrics.FilesystemError(op)
	l.metrics.Capture(kind, observability.OutcomeFailed)
}
