// Package wrapper runs a build command as a child process and raises the
// lifecycle events the capture listener subscribes to.
//
// Events follow the host order: build finished, then build scan published, then
// shutdown. A link printed while the build runs is held until the build outcome
// is known.
package wrapper

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/daimoniac/scancapture/internal/lifecycle"
	"golang.org/x/sync/errgroup"
)

// DefaultLinkPattern matches the build scan link printed once a scan is published
var DefaultLinkPattern = regexp.MustCompile(`https?://[^\s"'<>]+/s/[A-Za-z0-9]+`)

// Options configures a Runner
type Options struct {
	// Command is the build command and its arguments
	Command []string

	ProjectID   string
	ToolVersion string

	Stdout io.Writer
	Stderr io.Writer

	// LinkPattern recognises the published build scan link in the build output
	LinkPattern *regexp.Regexp
}

// Runner is a lifecycle.Host and lifecycle.Session backed by a child process
type Runner struct {
	logger *slog.Logger
	opts   Options

	mu        sync.Mutex
	finished  []func(lifecycle.BuildResult)
	published []func(lifecycle.PublishedScan)
	shutdown  []func()

	scan         atomic.Pointer[lifecycle.Scan]
	shutdownOnce sync.Once
}

var (
	_ lifecycle.Host    = (*Runner)(nil)
	_ lifecycle.Session = (*Runner)(nil)
)

// New creates a Runner for the given command
func New(logger *slog.Logger, opts Options) (*Runner, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, errors.NewPermanentf("%w: no build command given", errors.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.LinkPattern == nil {
		opts.LinkPattern = DefaultLinkPattern
	}
	if opts.ProjectID == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.ProjectID = filepath.Base(wd)
		}
	}

	return &Runner{logger: logger, opts: opts}, nil
}

func (r *Runner) OnBuildFinished(fn func(lifecycle.BuildResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, fn)
}

func (r *Runner) OnBuildScanPublished(fn func(lifecycle.PublishedScan)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, fn)
}

func (r *Runner) OnShutdown(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = append(r.shutdown, fn)
}

func (r *Runner) ProjectID() string { return r.opts.ProjectID }

// RequestedGoals returns the arguments passed to the build tool
func (r *Runner) RequestedGoals() []string {
	return append([]string(nil), r.opts.Command[1:]...)
}

// ToolVersion returns the configured build tool version if it is a semantic version
func (r *Runner) ToolVersion() (string, error) {
	if r.opts.ToolVersion == "" {
		return "", fmt.Errorf("build tool version not provided")
	}
	if _, err := semver.NewVersion(r.opts.ToolVersion); err != nil {
		return "", fmt.Errorf("invalid build tool version %q: %w", r.opts.ToolVersion, err)
	}
	return r.opts.ToolVersion, nil
}

// Run starts the build, waits for it and fires the shutdown callbacks.
// It returns the child's exit code; err is set only when the child could not run.
func (r *Runner) Run(ctx context.Context) (int, error) {
	defer r.Shutdown()

	cmd := exec.CommandContext(ctx, r.opts.Command[0], r.opts.Command[1:]...)
	cmd.Stdin = os.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.startFailed(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.startFailed(err)
	}

	if err := cmd.Start(); err != nil {
		return r.startFailed(err)
	}
	r.logger.Debug("build started", "command", r.opts.Command, "pid", cmd.Process.Pid)

	stopSignals := forwardSignals(r.logger, cmd.Process)
	defer stopSignals()

	var g errgroup.Group
	g.Go(func() error { return r.scanOutput(stdout, r.opts.Stdout) })
	g.Go(func() error { return r.scanOutput(stderr, r.opts.Stderr) })
	if err := g.Wait(); err != nil {
		r.logger.Warn("failed to relay build output", "error", err)
	}

	waitErr := cmd.Wait()
	exitCode := 0
	var result lifecycle.BuildResult
	if waitErr != nil {
		exitCode = 1
		var exitErr *exec.ExitError
		if stderrors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
			if exitCode < 0 {
				exitCode = 1
			}
		}
		result.Failures = append(result.Failures, waitErr)
	}

	r.logger.Debug("build finished", "exit_code", exitCode)
	r.fireFinished(result)
	r.firePublished()

	return exitCode, nil
}

// Shutdown fires the shutdown callbacks; only the first call has an effect
func (r *Runner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		callbacks := append([]func(){}, r.shutdown...)
		r.mu.Unlock()

		for _, fn := range callbacks {
			fn()
		}
	})
}

func (r *Runner) startFailed(err error) (int, error) {
	r.fireFinished(lifecycle.BuildResult{Failures: []error{err}})
	return 1, fmt.Errorf("failed to start build %q: %w", r.opts.Command[0], err)
}

// scanOutput copies build output line by line and watches it for the build scan link
func (r *Runner) scanOutput(src io.Reader, dst io.Writer) error {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if _, werr := io.WriteString(dst, line); werr != nil {
				// keep draining so the child never blocks on a full pipe
				dst = io.Discard
			}
			r.detectLink(line)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// detectLink keeps the first build scan link seen in the output
func (r *Runner) detectLink(line string) {
	if r.scan.Load() != nil {
		return
	}

	match := r.opts.LinkPattern.FindString(line)
	if match == "" {
		return
	}

	uri, err := url.Parse(match)
	if err != nil {
		r.logger.Debug("ignoring malformed build scan link", "link", match, "error", err)
		return
	}

	if r.scan.CompareAndSwap(nil, &lifecycle.Scan{ID: path.Base(uri.Path), URI: uri}) {
		r.logger.Debug("build scan link detected", "link", match)
	}
}

func (r *Runner) firePublished() {
	scan := r.scan.Load()
	if scan == nil {
		return
	}

	r.mu.Lock()
	callbacks := append([]func(lifecycle.PublishedScan){}, r.published...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(*scan)
	}
}

func (r *Runner) fireFinished(result lifecycle.BuildResult) {
	r.mu.Lock()
	callbacks := append([]func(lifecycle.BuildResult){}, r.finished...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(result)
	}
}

// forwardSignals relays SIGINT and SIGTERM to the child until the returned stop func is called
func forwardSignals(logger *slog.Logger, process *os.Process) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigs:
				logger.Info("forwarding signal to build", "signal", sig.String())
				if err := process.Signal(sig); err != nil {
					logger.Debug("failed to forward signal", "signal", sig.String(), "error", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
